package notifier

import (
	"maps"
	"regexp"
	"strings"

	"gradewatch/internal/watcher"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

type BodyField struct {
	Label string
	Field string
}

// Formatter renders a record into a Message. It implements watcher.Formatter.
type Formatter struct {
	// TitleTemplate may reference any record field as {FIELD}. Unknown
	// fields render empty.
	TitleTemplate string
	// BodyFields become "label: value" lines, in order.
	BodyFields []BodyField
	// Options are passed through to backends (e.g. ServerChan tags).
	Options map[string]string
}

var _ watcher.Formatter = Formatter{}

func (f Formatter) Format(r watcher.Record) watcher.Message {
	lines := make([]string, 0, len(f.BodyFields))
	for _, bf := range f.BodyFields {
		lines = append(lines, bf.Label+": "+strings.TrimSpace(r.Field(bf.Field)))
	}
	return watcher.Message{
		Title:   Render(f.TitleTemplate, r),
		Body:    strings.Join(lines, "\n"),
		Options: maps.Clone(f.Options),
	}
}

// Render substitutes {FIELD} placeholders with trimmed record values.
func Render(tmpl string, r watcher.Record) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		return strings.TrimSpace(r.Field(m[1 : len(m)-1]))
	})
}

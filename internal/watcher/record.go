package watcher

import (
	"sort"
	"strings"
)

// Record is one immutable entry of the remote listing (e.g. one course grade).
// Values are kept in their string-normalized display form.
type Record struct {
	fields map[string]string
}

// NewRecord copies fields into a new Record.
func NewRecord(fields map[string]string) Record {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Record{fields: cp}
}

// Field returns the value of name, or "" if the record has no such field.
func (r Record) Field(name string) string {
	if r.fields == nil {
		return ""
	}
	return r.fields[name]
}

// Lookup reports whether the record carries name.
func (r Record) Lookup(name string) (string, bool) {
	if r.fields == nil {
		return "", false
	}
	v, ok := r.fields[name]
	return v, ok
}

// Fields returns a copy of all fields.
func (r Record) Fields() map[string]string {
	cp := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		cp[k] = v
	}
	return cp
}

// Names returns the field names in sorted order.
func (r Record) Names() []string {
	out := make([]string, 0, len(r.fields))
	for k := range r.fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Identity returns the normalized identity of r under field.
// An empty result means the record cannot take part in deduplication.
func Identity(r Record, field string) string {
	return strings.TrimSpace(r.Field(field))
}

// SeenSet is the set of record identities observed so far.
// It only ever grows.
type SeenSet map[string]struct{}

func NewSeenSet() SeenSet { return SeenSet{} }

func (s SeenSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id and reports whether it was new. Empty ids are ignored.
func (s SeenSet) Add(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s SeenSet) Len() int { return len(s) }

// Sorted returns the identities in ascending order.
func (s SeenSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

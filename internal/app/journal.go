package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gradewatch/internal/storage"
)

var ErrJournalDisabled = errors.New("journal disabled (storage.driver is empty or none)")

// Journal prints the newest limit journal entries.
func (a *App) Journal(ctx context.Context, w io.Writer, limit int) error {
	defer a.closeCore()

	sc, enabled, err := mapStorageConfig(a.cfg)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrJournalDisabled
	}
	st, err := storage.Open(sc, a.log)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.RecentEvents(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAT\tTYPE\tPHASE\tIDENTITY\tRUN")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.At.Local().Format(time.DateTime), e.Type, e.Phase, e.Identity, shortID(e.RunID))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

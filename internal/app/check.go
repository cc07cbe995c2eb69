package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gradewatch/internal/watcher"
	logx "gradewatch/pkg/logx"
)

// Check logs in once, fetches once and prints what the loop would baseline.
// It never notifies.
func (a *App) Check(ctx context.Context, w io.Writer) error {
	defer a.closeCore()

	h, err := a.auth.Authenticate(ctx)
	if err != nil {
		return err
	}
	records, err := a.fetcher.Fetch(ctx, h)
	if err != nil {
		return err
	}

	field := a.settings.IdentityField
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := []string{"IDENTITY"}
	cols := make([]string, 0, len(a.settings.BodyFields))
	for _, bf := range a.settings.BodyFields {
		header = append(header, strings.ToUpper(bf.Label))
		cols = append(cols, bf.Field)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	seen := watcher.NewSeenSet()
	for _, r := range records {
		id := watcher.Identity(r, field)
		row := []string{id}
		if id == "" {
			row[0] = "(none)"
		}
		for _, c := range cols {
			row = append(row, strings.TrimSpace(r.Field(c)))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
		if id != "" {
			seen.Add(id)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d records, %d distinct identities (%s)\n", len(records), seen.Len(), field)
	return nil
}

// NotifyTest sends one message through every configured backend.
func (a *App) NotifyTest(ctx context.Context) error {
	defer a.closeCore()

	msg := watcher.Message{
		Title:   "gradewatch test notification",
		Body:    fmt.Sprintf("Sent at %s by run %s.", time.Now().Format(time.RFC3339), a.runID),
		Options: a.cfg.Notify.Options,
	}
	if err := a.notif.Notify(ctx, msg); err != nil {
		return err
	}
	a.log.Info("test notification sent", logx.Strings("backends", a.notif.Backends()))
	return nil
}

// closeCore releases what New opened, for the one-shot commands.
func (a *App) closeCore() {
	_ = a.notif.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

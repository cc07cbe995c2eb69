package notifier

import (
	"context"

	"gradewatch/internal/watcher"
	logx "gradewatch/pkg/logx"
)

// Console logs messages instead of sending them.
type Console struct{ log logx.Logger }

func NewConsole(log logx.Logger) *Console {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Console{log: log}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Send(_ context.Context, msg watcher.Message) error {
	c.log.Info("notification", logx.String("title", msg.Title), logx.String("body", msg.Body))
	return nil
}

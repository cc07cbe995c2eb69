package watcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "gradewatch/pkg/logx"
)

type ctxNotifier struct {
	ctxErr error
	msg    Message
	calls  int
}

func (n *ctxNotifier) Notify(ctx context.Context, msg Message) error {
	n.calls++
	n.ctxErr = ctx.Err()
	n.msg = msg
	return nil
}

func TestFatalBody(t *testing.T) {
	body := FatalBody(&RetryExhaustedError{Attempts: 3, Last: errors.New("login refused")})
	assert.Equal(t, "The program failed 3 consecutive times and has exited.\n\nLast error:\nlogin refused", body)

	assert.Equal(t, "The program has exited.\n\nLast error:\nboom", FatalBody(errBoom))
}

func TestEscalateFatalUsesFreshContext(t *testing.T) {
	n := &ctxNotifier{}
	e := NewEscalator(n, "Watcher down", map[string]string{"tags": "grades"}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.EscalateFatal(ctx, errBoom)

	require.Equal(t, 1, n.calls)
	assert.NoError(t, n.ctxErr)
	assert.Equal(t, "Watcher down", n.msg.Title)
	assert.Equal(t, "grades", n.msg.Options["tags"])
}

func TestEscalatorDefaultsTitle(t *testing.T) {
	n := &ctxNotifier{}
	NewEscalator(n, "", nil, logx.Logger{}).EscalateFatal(context.Background(), errBoom)
	assert.Equal(t, DefaultEscalationTitle, n.msg.Title)
}

func TestNilEscalatorIsNoop(t *testing.T) {
	var e *Escalator
	assert.NotPanics(t, func() { e.EscalateFatal(context.Background(), errBoom) })
}

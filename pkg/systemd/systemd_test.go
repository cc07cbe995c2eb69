package systemd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifier(t *testing.T) {
	var sent []string
	n := New(true)
	n.send = func(state string) (bool, error) {
		sent = append(sent, state)
		return true, nil
	}

	assert.NoError(t, n.Ready())
	assert.NoError(t, n.Status("polling, 12 seen"))
	assert.NoError(t, n.Watchdog())
	assert.NoError(t, n.Stopping())
	assert.Equal(t, []string{"READY=1", "STATUS=polling, 12 seen", "WATCHDOG=1", "STOPPING=1"}, sent)
}

func TestNotifier_Disabled(t *testing.T) {
	n := New(false)
	n.send = func(string) (bool, error) { return false, errors.New("should not be called") }
	assert.NoError(t, n.Ready())
	assert.Zero(t, n.WatchdogInterval())

	var nilN *Notifier
	assert.NoError(t, nilN.Status("x"))
}

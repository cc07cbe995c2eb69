// Package systemd speaks the sd_notify protocol for Type=notify units.
// Every method is a no-op outside systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

type Notifier struct {
	enabled bool
	send    func(state string) (bool, error)
}

// New returns a notifier; enabled=false makes every call a no-op.
func New(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		send: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

func (n *Notifier) notify(state string) error {
	if n == nil || !n.enabled {
		return nil
	}
	_, err := n.send(state)
	return err
}

func (n *Notifier) Ready() error { return n.notify(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() error { return n.notify(daemon.SdNotifyStopping) }

func (n *Notifier) Watchdog() error { return n.notify(daemon.SdNotifyWatchdog) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) error { return n.notify("STATUS=" + s) }

// WatchdogInterval is WatchdogSec from the unit, or 0 when unset.
func (n *Notifier) WatchdogInterval() time.Duration {
	if n == nil || !n.enabled {
		return 0
	}
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}

package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	"finpal/pkg/logging"
)

// notify sends a readiness state to systemd. It is a no-op outside a
// systemd unit.
func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("Systemd", "Failed to notify systemd (%s): %v", state, err)
		return
	}
	if sent {
		logging.Debug("Systemd", "Notified systemd: %s", state)
	}
}

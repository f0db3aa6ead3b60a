package poller

import (
	"errors"
	"fmt"

	"github.com/openwrt-tools/ubus-monitor/pkg/ubus"
)

// Cycle outcomes reported to the scheduler.
var (
	// ErrReauthRequired means the device rejected our credentials; retrying
	// on the next interval will not help until an operator fixes them.
	ErrReauthRequired = errors.New("re-authentication required")
	// ErrCommunication is any other failure of the load-bearing steps.
	ErrCommunication = errors.New("communication error")
)

// classify maps a bootstrap/info failure onto a cycle outcome.
func classify(step string, err error) error {
	if errors.Is(err, ubus.ErrAuthExpired) || errors.Is(err, ubus.ErrPermissionDenied) {
		return fmt.Errorf("%s: %w: %w", step, ErrReauthRequired, err)
	}
	return fmt.Errorf("%s: %w: %w", step, ErrCommunication, err)
}

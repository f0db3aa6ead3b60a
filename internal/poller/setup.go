package poller

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/events"
	"github.com/openwrt-tools/ubus-monitor/internal/models"
	"github.com/openwrt-tools/ubus-monitor/internal/storage"
	"github.com/openwrt-tools/ubus-monitor/pkg/ubus"
)

// NewSessionClient creates the ubus client of a device. Polling and commands
// share it.
func NewSessionClient(dev *models.DeviceIdentity, timeout time.Duration) *ubus.Client {
	logger := log.With().Str("device", dev.ID).Logger()
	return ubus.NewClient(ubus.Config{
		URL:       dev.URL(),
		Username:  dev.Username,
		Password:  dev.Password,
		Timeout:   timeout,
		VerifyTLS: dev.VerifyTLS,
		Logger:    &logger,
	})
}

// BuildScheduler creates a coordinator with its own session client for every
// device.
func BuildScheduler(devices []*models.DeviceIdentity, timeout time.Duration, maxWorkers int, store storage.SnapshotStore, publisher events.Publisher) *Scheduler {
	s := NewScheduler(publisher, maxWorkers)
	for _, dev := range devices {
		s.Add(NewCoordinator(dev, NewSessionClient(dev, timeout), store))
	}
	return s
}

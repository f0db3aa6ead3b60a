package events

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

// Publisher delivers events and snapshots to external consumers.
type Publisher interface {
	PublishEvent(ctx context.Context, event *models.Event) error
	PublishSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	Close() error
}

// LogPublisher writes events to the log. It is always part of the fan-out so
// command results stay visible without a broker.
type LogPublisher struct{}

// PublishEvent logs the event
func (LogPublisher) PublishEvent(_ context.Context, e *models.Event) error {
	log.Info().
		Str("id", e.ID.String()).
		Str("type", string(e.Type)).
		Str("device", e.DeviceID).
		Str("command", e.Command).
		Int("code", e.Code).
		Msg("Device event")
	return nil
}

// PublishSnapshot logs a short summary of the snapshot
func (LogPublisher) PublishSnapshot(_ context.Context, s *models.Snapshot) error {
	log.Debug().
		Str("device", s.DeviceID).
		Str("model", s.Info.Model).
		Int("clients", s.TotalClients()).
		Int("mesh", len(s.Mesh)).
		Msg("Snapshot published")
	return nil
}

// Close is a no-op
func (LogPublisher) Close() error { return nil }

// Multi fans out to several publishers. A failing publisher does not stop the
// others; the errors are joined.
type Multi []Publisher

// PublishEvent sends the event to every publisher
func (m Multi) PublishEvent(ctx context.Context, e *models.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishEvent(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishSnapshot sends the snapshot to every publisher
func (m Multi) PublishSnapshot(ctx context.Context, s *models.Snapshot) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishSnapshot(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// token makes s usable as a single NATS subject token or MQTT topic level.
func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '/', '*', '>', '+', '#', ' ':
			return '_'
		}
		return r
	}, s)
}

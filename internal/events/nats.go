package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

// NATSPublisher publishes JSON messages on
// <prefix>.device.<id>.event.<type> and <prefix>.device.<id>.snapshot.
type NATSPublisher struct {
	nc               *nats.Conn
	prefix           string
	publishSnapshots bool
}

// NewNATSPublisher creates a NATS publisher. The connection is owned by the
// caller.
func NewNATSPublisher(nc *nats.Conn, prefix string, publishSnapshots bool) *NATSPublisher {
	return &NATSPublisher{
		nc:               nc,
		prefix:           prefix,
		publishSnapshots: publishSnapshots,
	}
}

// EventSubject returns the subject an event is published on.
func EventSubject(prefix string, e *models.Event) string {
	return fmt.Sprintf("%s.device.%s.event.%s", prefix, token(e.DeviceID), strings.ToLower(string(e.Type)))
}

// SnapshotSubject returns the subject snapshots of deviceID are published on.
func SnapshotSubject(prefix, deviceID string) string {
	return fmt.Sprintf("%s.device.%s.snapshot", prefix, token(deviceID))
}

// PublishEvent publishes the event
func (p *NATSPublisher) PublishEvent(_ context.Context, e *models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := EventSubject(p.prefix, e)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	log.Debug().Str("subject", subject).Msg("Event published to NATS")
	return nil
}

// PublishSnapshot publishes the snapshot when enabled
func (p *NATSPublisher) PublishSnapshot(_ context.Context, s *models.Snapshot) error {
	if !p.publishSnapshots {
		return nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	subject := SnapshotSubject(p.prefix, s.DeviceID)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages
func (p *NATSPublisher) Close() error {
	if p.nc.IsClosed() {
		return nil
	}
	return p.nc.Flush()
}

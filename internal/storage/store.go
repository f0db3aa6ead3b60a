package storage

import (
	"errors"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// SnapshotLookup is the read-only view of the latest snapshot of every known
// device. Snapshots returned are immutable and safe to read without locking.
type SnapshotLookup interface {
	// Latest returns the last published snapshot, or nil if the device has
	// not completed a cycle yet.
	Latest(deviceID string) *models.Snapshot
	// DeviceIDs returns the ids of all known devices in sorted order.
	DeviceIDs() []string
}

// SnapshotStore publishes snapshots. Publish replaces the previous snapshot
// atomically.
type SnapshotStore interface {
	SnapshotLookup
	Register(deviceID string)
	Publish(snapshot *models.Snapshot)
	Get(deviceID string) (*models.Snapshot, error)
}

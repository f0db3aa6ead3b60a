package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is delivered to external consumers after a command or poll cycle.
type Event struct {
	ID        uuid.UUID  `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	Type      EventType  `json:"type"`
	Level     EventLevel `json:"level"`

	DeviceID string `json:"deviceId"`
	Address  string `json:"address"`

	Command string      `json:"command,omitempty"`
	Code    int         `json:"code"`
	Stdout  interface{} `json:"stdout,omitempty"`
	Stderr  interface{} `json:"stderr,omitempty"`

	Metadata Variables `json:"metadata,omitempty"`
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(t EventType, device *DeviceIdentity) *Event {
	e := &Event{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		Type:      t,
		Level:     EventLevelInfo,
	}
	if device != nil {
		e.DeviceID = device.ID
		e.Address = device.Address
	}
	return e
}

// EventType represents event types
type EventType string

const (
	// Command events
	EventTypeExec        EventType = "EXEC"
	EventTypeServiceInit EventType = "SERVICE_INIT"
	EventTypeReboot      EventType = "REBOOT"
	EventTypeWPS         EventType = "WPS"

	// Poll events
	EventTypeSnapshot     EventType = "SNAPSHOT"
	EventTypePollFailed   EventType = "POLL_FAILED"
	EventTypeReauthNeeded EventType = "REAUTH_REQUIRED"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelDebug   EventLevel = "DEBUG"
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)

package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
	"github.com/openwrt-tools/ubus-monitor/internal/storage"
)

// Caller is the part of the ubus session client the poller needs.
type Caller interface {
	Call(ctx context.Context, subsystem, method string, params map[string]interface{}) (map[string]interface{}, error)
	List(ctx context.Context) (map[string]interface{}, error)
}

// step is one optional section of a poll cycle. A step with a capability is
// skipped when the device does not expose that object. Errors returned by a
// step only degrade its own section.
type step struct {
	name       string
	capability string
	run        func(c *Coordinator, ctx context.Context, cy *cycle) error
	reset      func(cy *cycle)
}

// pollSteps run in order after bootstrap and info.
var pollSteps = []step{
	{
		name:       "wireless",
		capability: "network.wireless",
		run:        (*Coordinator).discoverWireless,
		reset:      func(cy *cycle) { cy.wireless = wirelessConfig{} },
	},
	{
		name:  "ap",
		run:   (*Coordinator).updateAP,
		reset: func(cy *cycle) { cy.snap.Wireless = map[string]models.APStats{} },
	},
	{
		name:       "mesh",
		capability: "iwinfo",
		run:        (*Coordinator).updateMesh,
		reset:      func(cy *cycle) { cy.snap.Mesh = map[string]models.MeshStats{} },
	},
	{
		name:       "mwan3",
		capability: "mwan3",
		run:        (*Coordinator).updateMwan3,
		reset:      func(cy *cycle) { cy.snap.Mwan3 = map[string]models.LinkStats{} },
	},
	{
		name:  "wan",
		run:   (*Coordinator).updateWan,
		reset: func(cy *cycle) { cy.snap.Wan = map[string]models.WanStats{} },
	},
}

// cycle carries the state of one refresh.
type cycle struct {
	caps     Capabilities
	snap     *models.Snapshot
	wireless wirelessConfig
}

// Coordinator runs poll cycles for a single device.
type Coordinator struct {
	device *models.DeviceIdentity
	client Caller
	store  storage.SnapshotStore
	logger zerolog.Logger

	capsMu sync.RWMutex
	caps   Capabilities

	// cycleMu serialises cycles of this device
	cycleMu sync.Mutex

	refresh chan struct{}
}

// NewCoordinator creates a coordinator and registers the device in store.
func NewCoordinator(device *models.DeviceIdentity, client Caller, store storage.SnapshotStore) *Coordinator {
	store.Register(device.ID)
	return &Coordinator{
		device:  device,
		client:  client,
		store:   store,
		logger:  log.With().Str("device", device.ID).Logger(),
		refresh: make(chan struct{}, 1),
	}
}

// Device returns the identity of the polled device.
func (c *Coordinator) Device() *models.DeviceIdentity {
	return c.device
}

// Client returns the session client shared with command execution.
func (c *Coordinator) Client() Caller {
	return c.client
}

// Capabilities returns the cached capability set, nil before bootstrap.
func (c *Coordinator) Capabilities() Capabilities {
	c.capsMu.RLock()
	defer c.capsMu.RUnlock()
	return c.caps
}

// Latest returns the last published snapshot of this device.
func (c *Coordinator) Latest() *models.Snapshot {
	return c.store.Latest(c.device.ID)
}

// RequestRefresh asks the scheduler for an immediate cycle. Requests made
// while one is already pending are coalesced.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Refresh runs one full poll cycle and publishes the resulting snapshot.
//
// Bootstrap and info failures abort the cycle and return ErrReauthRequired or
// ErrCommunication; nothing is published. Failures of later steps only empty
// their own section. If ctx is cancelled between steps the remaining
// sections are left empty and the snapshot is still published.
func (c *Coordinator) Refresh(ctx context.Context) (*models.Snapshot, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	started := time.Now()

	caps, err := c.bootstrap(ctx)
	if err != nil {
		return nil, classify("bootstrap", err)
	}

	cy := &cycle{
		caps: caps,
		snap: models.NewSnapshot(c.device.ID),
	}

	info, err := c.updateInfo(ctx)
	if err != nil {
		return nil, classify("info", err)
	}
	cy.snap.Info = info

	for _, s := range pollSteps {
		if ctx.Err() != nil {
			c.logger.Warn().
				Str("step", s.name).
				Err(ctx.Err()).
				Msg("Poll cycle interrupted, publishing partial snapshot")
			break
		}
		if s.capability != "" && !caps.Has(s.capability) {
			c.logger.Debug().Str("step", s.name).Str("object", s.capability).Msg("Step not supported by device")
			continue
		}
		if err := s.run(c, ctx, cy); err != nil {
			c.logger.Warn().Err(err).Str("step", s.name).Msg("Poll step failed")
			s.reset(cy)
		}
	}

	cy.snap.UpdatedAt = time.Now()
	c.store.Publish(cy.snap)

	c.logger.Debug().
		Dur("took", time.Since(started)).
		Int("wireless", len(cy.snap.Wireless)).
		Int("mesh", len(cy.snap.Mesh)).
		Int("mwan3", len(cy.snap.Mwan3)).
		Int("wan", len(cy.snap.Wan)).
		Msg("Poll cycle complete")

	return cy.snap, nil
}

// bootstrap fetches the capability set on the first cycle.
func (c *Coordinator) bootstrap(ctx context.Context) (Capabilities, error) {
	if caps := c.Capabilities(); caps != nil {
		return caps, nil
	}

	catalog, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	caps := NewCapabilities(catalog)
	c.capsMu.Lock()
	c.caps = caps
	c.capsMu.Unlock()

	c.logger.Info().Int("objects", len(caps)).Msg("Loaded device capabilities")
	return caps, nil
}

// updateInfo reads board identity from system.board.
func (c *Coordinator) updateInfo(ctx context.Context) (models.DeviceInfo, error) {
	resp, err := c.client.Call(ctx, "system", "board", nil)
	if err != nil {
		return models.DeviceInfo{}, fmt.Errorf("system board: %w", err)
	}

	board := models.Variables(resp)
	release := board.Map("release")
	return models.DeviceInfo{
		Model:        board.String("model"),
		Manufacturer: release.String("distribution"),
		SWVersion:    fmt.Sprintf("%s %s", release.String("version"), release.String("revision")),
	}, nil
}

package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/events"
	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

// ErrUnknownDevice is returned when no coordinator exists for a device id.
var ErrUnknownDevice = errors.New("unknown device")

const shutdownGrace = 5 * time.Second

// Scheduler drives the coordinators of all devices. Each device has its own
// loop; at most maxWorkers cycles run at the same time.
type Scheduler struct {
	coordinators map[string]*Coordinator
	publisher    events.Publisher
	maxWorkers   int
}

// NewScheduler creates a scheduler. publisher may be nil.
func NewScheduler(publisher events.Publisher, maxWorkers int) *Scheduler {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	return &Scheduler{
		coordinators: make(map[string]*Coordinator),
		publisher:    publisher,
		maxWorkers:   maxWorkers,
	}
}

// Add registers a coordinator. It must be called before Run.
func (s *Scheduler) Add(c *Coordinator) {
	s.coordinators[c.device.ID] = c
}

// Coordinator returns the coordinator of deviceID.
func (s *Scheduler) Coordinator(deviceID string) (*Coordinator, error) {
	c, ok := s.coordinators[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return c, nil
}

// Coordinators returns all coordinators ordered by device id.
func (s *Scheduler) Coordinators() []*Coordinator {
	ids := make([]string, 0, len(s.coordinators))
	for id := range s.coordinators {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := make([]*Coordinator, 0, len(ids))
	for _, id := range ids {
		list = append(list, s.coordinators[id])
	}
	return list
}

// Run polls every device until ctx is cancelled, then waits a short grace
// period for running cycles to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.coordinators) == 0 {
		return fmt.Errorf("no devices to poll")
	}

	sem := make(chan struct{}, s.maxWorkers)
	var wg sync.WaitGroup

	for _, c := range s.Coordinators() {
		wg.Add(1)
		go func(c *Coordinator) {
			defer wg.Done()
			s.loop(ctx, sem, c)
		}(c)
	}

	log.Info().
		Int("devices", len(s.coordinators)).
		Int("workers", s.maxWorkers).
		Msg("Poll scheduler started")

	<-ctx.Done()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Warn().Msg("Timeout waiting for poll cycles to stop")
	}

	log.Info().Msg("Poll scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, sem chan struct{}, c *Coordinator) {
	s.poll(ctx, sem, c)

	ticker := time.NewTicker(c.device.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.refresh:
			ticker.Reset(c.device.PollInterval)
		}
		s.poll(ctx, sem, c)
	}
}

// poll runs one cycle in a worker slot and reports its outcome. A cycle never
// outlives the device's poll interval.
func (s *Scheduler) poll(ctx context.Context, sem chan struct{}, c *Coordinator) {
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return
	}

	cycleCtx, cancel := context.WithTimeout(ctx, c.device.PollInterval)
	defer cancel()

	snap, err := c.Refresh(cycleCtx)
	if err != nil {
		s.reportFailure(ctx, c, err)
		return
	}

	if err := s.publisher.PublishSnapshot(ctx, snap); err != nil {
		c.logger.Error().Err(err).Msg("Failed to publish snapshot")
	}
}

func (s *Scheduler) reportFailure(ctx context.Context, c *Coordinator, err error) {
	event := models.NewEvent(models.EventTypePollFailed, c.device)
	event.Level = models.EventLevelWarning
	if errors.Is(err, ErrReauthRequired) {
		event.Type = models.EventTypeReauthNeeded
		event.Level = models.EventLevelError
		c.logger.Error().Err(err).Msg("Device requires re-authentication")
	} else {
		c.logger.Warn().Err(err).Msg("Poll cycle failed")
	}
	event.Metadata = models.Variables{"error": err.Error()}

	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		c.logger.Error().Err(err).Msg("Failed to publish event")
	}
}

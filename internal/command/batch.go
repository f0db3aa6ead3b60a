package command

import (
	"context"
	"sync"

	"github.com/openwrt-tools/ubus-monitor/internal/poller"
)

// Result is the outcome of a command on one device.
type Result struct {
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Lookup resolves a device id to a command target.
type Lookup func(deviceID string) (Target, error)

// SchedulerLookup resolves targets through the scheduler's coordinators.
func SchedulerLookup(s *poller.Scheduler) Lookup {
	return func(deviceID string) (Target, error) {
		c, err := s.Coordinator(deviceID)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Batch runs one command against several devices at once.
type Batch struct {
	lookup      Lookup
	maxParallel int
}

// NewBatch creates a batch runner limited to maxParallel devices at a time.
func NewBatch(lookup Lookup, maxParallel int) *Batch {
	if maxParallel <= 0 {
		maxParallel = 10
	}
	return &Batch{lookup: lookup, maxParallel: maxParallel}
}

// Run calls fn for every device and collects per-device results. A failing or
// unknown device never fails the batch.
func (b *Batch) Run(ctx context.Context, deviceIDs []string, fn func(ctx context.Context, t Target) (interface{}, error)) map[string]Result {
	results := make(map[string]Result, len(deviceIDs))
	var mu sync.Mutex
	set := func(id string, r Result) {
		mu.Lock()
		results[id] = r
		mu.Unlock()
	}

	sem := make(chan struct{}, b.maxParallel)
	var wg sync.WaitGroup
	seen := make(map[string]bool, len(deviceIDs))

	for _, id := range deviceIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		target, err := b.lookup(id)
		if err != nil {
			set(id, Result{Error: err.Error()})
			continue
		}

		wg.Add(1)
		go func(id string, t Target) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				set(id, Result{Error: ctx.Err().Error()})
				return
			}

			data, err := fn(ctx, t)
			if err != nil {
				set(id, Result{Error: err.Error()})
				return
			}
			set(id, Result{Data: data})
		}(id, target)
	}

	wg.Wait()
	return results
}

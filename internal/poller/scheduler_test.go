package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
	"github.com/openwrt-tools/ubus-monitor/internal/storage"
	"github.com/openwrt-tools/ubus-monitor/pkg/ubus"
)

type recordingPublisher struct {
	events    chan *models.Event
	snapshots chan *models.Snapshot
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		events:    make(chan *models.Event, 16),
		snapshots: make(chan *models.Snapshot, 16),
	}
}

func (p *recordingPublisher) PublishEvent(_ context.Context, e *models.Event) error {
	select {
	case p.events <- e:
	default:
	}
	return nil
}

func (p *recordingPublisher) PublishSnapshot(_ context.Context, s *models.Snapshot) error {
	select {
	case p.snapshots <- s:
	default:
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestSchedulerPollsAndReportsFailures(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := newRecordingPublisher()
	s := NewScheduler(pub, 1)

	good := fullRouter()
	s.Add(NewCoordinator(testDevice("good"), good, store))

	bad := fullRouter()
	bad.listErr = &ubus.Error{Kind: ubus.ErrAuthExpired}
	s.Add(NewCoordinator(testDevice("bad"), bad, store))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case snap := <-pub.snapshots:
		if snap.DeviceID != "good" {
			t.Errorf("snapshot for %q, want good", snap.DeviceID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot published")
	}

	select {
	case e := <-pub.events:
		if e.Type != models.EventTypeReauthNeeded || e.DeviceID != "bad" || e.Level != models.EventLevelError {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no failure event published")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSchedulerRefreshRequest(t *testing.T) {
	store := storage.NewMemoryStore()
	pub := newRecordingPublisher()
	s := NewScheduler(pub, 2)

	r := fullRouter()
	c := NewCoordinator(testDevice("ap1"), r, store)
	s.Add(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	<-pub.snapshots
	c.RequestRefresh()
	c.RequestRefresh()

	select {
	case <-pub.snapshots:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh request did not trigger a cycle")
	}
	if n := r.called("system", "board"); n < 2 {
		t.Errorf("board called %d times, want at least 2", n)
	}
}

func TestSchedulerLookup(t *testing.T) {
	s := NewScheduler(nil, 0)
	s.Add(NewCoordinator(testDevice("b"), newFakeRouter(), storage.NewMemoryStore()))
	s.Add(NewCoordinator(testDevice("a"), newFakeRouter(), storage.NewMemoryStore()))

	if _, err := s.Coordinator("missing"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("err = %v, want ErrUnknownDevice", err)
	}
	list := s.Coordinators()
	if len(list) != 2 || list[0].Device().ID != "a" {
		t.Errorf("coordinators not sorted by id")
	}
	if err := NewScheduler(nil, 1).Run(context.Background()); err == nil {
		t.Error("Run without devices should fail")
	}
}

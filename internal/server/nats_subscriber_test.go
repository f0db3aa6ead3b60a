package server

import (
	"context"
	"testing"

	"github.com/openwrt-tools/ubus-monitor/internal/command"
	"github.com/openwrt-tools/ubus-monitor/internal/models"
	"github.com/openwrt-tools/ubus-monitor/internal/poller"
	"github.com/openwrt-tools/ubus-monitor/internal/storage"
)

type stubCaller struct {
	calls []string
}

func (c *stubCaller) Call(_ context.Context, subsystem, method string, _ map[string]interface{}) (map[string]interface{}, error) {
	c.calls = append(c.calls, subsystem+"."+method)
	return map[string]interface{}{"code": float64(0), "stdout": "ok\n"}, nil
}

func (c *stubCaller) List(context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"system": map[string]interface{}{}}, nil
}

func newTestSubscriber(t *testing.T) (*NATSSubscriber, *stubCaller, storage.SnapshotStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	caller := &stubCaller{}
	sched := poller.NewScheduler(nil, 1)
	sched.Add(poller.NewCoordinator(&models.DeviceIdentity{ID: "ap1", Address: "ap1.lan"}, caller, store))

	svc := command.NewService(command.NewExecutor(nil), command.NewBatch(command.SchedulerLookup(sched), 2))
	return NewNATSSubscriber(nil, "ubus", svc, sched), caller, store
}

func TestCommandSubject(t *testing.T) {
	if got := CommandSubject("ubus", "exec"); got != "ubus.command.exec" {
		t.Errorf("subject = %q", got)
	}
}

func TestHandleExec(t *testing.T) {
	s, caller, _ := newTestSubscriber(t)

	results, err := s.handleExec(context.Background(), []byte(`{"devices":["ap1","nope"],"command":"uptime"}`))
	if err != nil {
		t.Fatalf("handleExec: %v", err)
	}
	if results["ap1"].Error != "" {
		t.Errorf("ap1 = %+v", results["ap1"])
	}
	if results["nope"].Error == "" {
		t.Error("unknown device should fail")
	}
	if len(caller.calls) != 1 || caller.calls[0] != "file.exec" {
		t.Errorf("calls = %v", caller.calls)
	}
}

func TestHandleRejectsInvalidRequests(t *testing.T) {
	s, _, _ := newTestSubscriber(t)

	if _, err := s.handleExec(context.Background(), []byte(`{"devices":["ap1"]}`)); err == nil {
		t.Error("exec without command accepted")
	}
	if _, err := s.handleService(context.Background(), []byte(`{"devices":["ap1"],"name":"x","action":"boom"}`)); err == nil {
		t.Error("unknown service action accepted")
	}
	if _, err := s.handleReboot(context.Background(), []byte(`not json`)); err == nil {
		t.Error("malformed body accepted")
	}
	if _, err := s.handleWPS(context.Background(), []byte(`{"interface":"wlan0","enable":true}`)); err == nil {
		t.Error("wps without devices accepted")
	}
}

func TestHandleSnapshot(t *testing.T) {
	s, _, store := newTestSubscriber(t)

	results, err := s.handleSnapshot(context.Background(), []byte(`{"devices":["ap1"]}`))
	if err != nil {
		t.Fatalf("handleSnapshot: %v", err)
	}
	if results["ap1"].Error == "" {
		t.Error("expected error before first snapshot")
	}

	snap := models.NewSnapshot("ap1")
	snap.Info.Model = "test"
	store.Publish(snap)

	results, err = s.handleSnapshot(context.Background(), []byte(`{"devices":["ap1"]}`))
	if err != nil {
		t.Fatalf("handleSnapshot: %v", err)
	}
	if got, ok := results["ap1"].Data.(*models.Snapshot); !ok || got.Info.Model != "test" {
		t.Errorf("ap1 = %+v", results["ap1"])
	}
}

package command

import (
	"context"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

// Service runs command requests against the selected devices. It is shared by
// the REST API and the NATS command subjects.
type Service struct {
	exec  *Executor
	batch *Batch
}

// NewService creates a command service
func NewService(exec *Executor, batch *Batch) *Service {
	return &Service{exec: exec, batch: batch}
}

// Reboot reboots every selected device
func (s *Service) Reboot(ctx context.Context, req *models.RebootRequest) map[string]Result {
	return s.batch.Run(ctx, req.Devices, func(ctx context.Context, t Target) (interface{}, error) {
		return nil, s.exec.Reboot(ctx, t)
	})
}

// Exec runs a shell command on every selected device
func (s *Service) Exec(ctx context.Context, req *models.ExecRequest) map[string]Result {
	execReq := ExecRequest{
		Command:  req.Command,
		Params:   req.Params,
		Env:      req.Env,
		Metadata: req.Metadata,
	}
	return s.batch.Run(ctx, req.Devices, func(ctx context.Context, t Target) (interface{}, error) {
		return s.exec.Exec(ctx, t, execReq)
	})
}

// ServiceInit runs an init action on every selected device
func (s *Service) ServiceInit(ctx context.Context, req *models.ServiceRequest) map[string]Result {
	return s.batch.Run(ctx, req.Devices, func(ctx context.Context, t Target) (interface{}, error) {
		return nil, s.exec.ServiceInit(ctx, t, req.Name, req.Action)
	})
}

// Call passes a raw call to every selected device
func (s *Service) Call(ctx context.Context, req *models.CallRequest) map[string]Result {
	return s.batch.Run(ctx, req.Devices, func(ctx context.Context, t Target) (interface{}, error) {
		return s.exec.RawCall(ctx, t, req.Subsystem, req.Method, req.Params)
	})
}

// SetWPS toggles WPS on every selected device
func (s *Service) SetWPS(ctx context.Context, req *models.WPSRequest) map[string]Result {
	return s.batch.Run(ctx, req.Devices, func(ctx context.Context, t Target) (interface{}, error) {
		return nil, s.exec.SetWPS(ctx, t, req.Interface, req.Enable)
	})
}

// Refresh requests an immediate poll cycle on every selected device
func (s *Service) Refresh(ctx context.Context, req *models.DeviceSelector) map[string]Result {
	return s.batch.Run(ctx, req.Devices, func(_ context.Context, t Target) (interface{}, error) {
		t.RequestRefresh()
		return nil, nil
	})
}

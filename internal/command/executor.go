package command

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/events"
	"github.com/openwrt-tools/ubus-monitor/internal/models"
	"github.com/openwrt-tools/ubus-monitor/internal/poller"
)

// Target is a device commands are sent to. Commands use the same session
// client as the device's poller.
type Target interface {
	Device() *models.DeviceIdentity
	Client() poller.Caller
	RequestRefresh()
}

// ExecRequest is a shell command run through file exec.
type ExecRequest struct {
	Command  string            `json:"command"`
	Params   []string          `json:"params,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Metadata models.Variables  `json:"metadata,omitempty"`
}

// ExecResult holds the exit code and parsed output of a command.
type ExecResult struct {
	Code   int         `json:"code"`
	Stdout interface{} `json:"stdout"`
	Stderr interface{} `json:"stderr"`
}

// Executor runs on-demand commands and reports their results as events.
type Executor struct {
	publisher events.Publisher
}

// NewExecutor creates an executor. publisher may be nil.
func NewExecutor(publisher events.Publisher) *Executor {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	return &Executor{publisher: publisher}
}

// Reboot restarts the device.
func (e *Executor) Reboot(ctx context.Context, t Target) error {
	dev := t.Device()
	log.Info().Str("device", dev.ID).Msg("Rebooting device")

	if _, err := t.Client().Call(ctx, "system", "reboot", nil); err != nil {
		return fmt.Errorf("reboot %s: %w", dev.ID, err)
	}

	e.emit(ctx, models.NewEvent(models.EventTypeReboot, dev))
	return nil
}

// Exec runs a command on the device and returns its parsed output.
func (e *Executor) Exec(ctx context.Context, t Target, req ExecRequest) (*ExecResult, error) {
	dev := t.Device()
	log.Debug().
		Str("device", dev.ID).
		Str("command", req.Command).
		Strs("params", req.Params).
		Msg("Executing command")

	params := map[string]interface{}{
		"command": req.Command,
		"params":  stringList(req.Params),
	}
	if len(req.Env) > 0 {
		params["env"] = req.Env
	}

	resp, err := t.Client().Call(ctx, "file", "exec", params)
	if err != nil {
		return nil, fmt.Errorf("exec %s on %s: %w", req.Command, dev.ID, err)
	}

	out := models.Variables(resp)
	stdout := out.String("stdout")
	stderr := out.String("stderr")
	result := &ExecResult{
		Code:   int(out.Int("code", 0)),
		Stdout: ParseOutput(stdout),
		Stderr: ParseOutput(stderr),
	}

	event := models.NewEvent(models.EventTypeExec, dev)
	event.Command = req.Command
	event.Code = result.Code
	event.Stdout = stdout
	event.Stderr = stderr
	event.Metadata = req.Metadata
	if result.Code != 0 {
		event.Level = models.EventLevelWarning
	}
	e.emit(ctx, event)

	return result, nil
}

// ServiceInit runs an init action (start, stop, restart, reload, enable,
// disable) on a service.
func (e *Executor) ServiceInit(ctx context.Context, t Target, name, action string) error {
	dev := t.Device()
	_, err := t.Client().Call(ctx, "rc", "init", map[string]interface{}{
		"name":   name,
		"action": action,
	})

	event := models.NewEvent(models.EventTypeServiceInit, dev)
	event.Command = name + " " + action
	event.Metadata = models.Variables{"name": name, "action": action}
	if err != nil {
		event.Level = models.EventLevelError
		event.Code = 1
		event.Metadata["error"] = err.Error()
	}
	e.emit(ctx, event)

	if err != nil {
		return fmt.Errorf("service %s %s on %s: %w", name, action, dev.ID, err)
	}
	return nil
}

// RawCall passes an arbitrary call through and returns the decoded payload.
func (e *Executor) RawCall(ctx context.Context, t Target, subsystem, method string, params map[string]interface{}) (map[string]interface{}, error) {
	resp, err := t.Client().Call(ctx, subsystem, method, params)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s on %s: %w", subsystem, method, t.Device().ID, err)
	}
	return resp, nil
}

// SetWPS starts or cancels push-button WPS on an access point and asks for an
// immediate refresh so the new state shows up.
func (e *Executor) SetWPS(ctx context.Context, t Target, ifname string, enable bool) error {
	dev := t.Device()
	method := "wps_cancel"
	if enable {
		method = "wps_start"
	}

	if _, err := t.Client().Call(ctx, "hostapd."+ifname, method, nil); err != nil {
		return fmt.Errorf("%s on %s/%s: %w", method, dev.ID, ifname, err)
	}
	t.RequestRefresh()

	event := models.NewEvent(models.EventTypeWPS, dev)
	event.Command = method
	event.Metadata = models.Variables{"interface": ifname, "enable": enable}
	e.emit(ctx, event)
	return nil
}

func (e *Executor) emit(ctx context.Context, event *models.Event) {
	if err := e.publisher.PublishEvent(ctx, event); err != nil {
		log.Error().Err(err).Str("device", event.DeviceID).Str("type", string(event.Type)).Msg("Failed to publish event")
	}
}

func stringList(list []string) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, s := range list {
		out = append(out, s)
	}
	return out
}

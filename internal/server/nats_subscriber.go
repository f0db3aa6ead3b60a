package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/command"
	"github.com/openwrt-tools/ubus-monitor/internal/models"
	"github.com/openwrt-tools/ubus-monitor/internal/poller"
	"github.com/openwrt-tools/ubus-monitor/internal/validation"
)

// commandTimeout bounds a single command request.
const commandTimeout = 60 * time.Second

// Reply is the response to a command request
type Reply struct {
	RequestID string                    `json:"requestId"`
	Results   map[string]command.Result `json:"results,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// NATSSubscriber answers command requests on <prefix>.command.<name>
type NATSSubscriber struct {
	nc        *nats.Conn
	prefix    string
	commands  *command.Service
	scheduler *poller.Scheduler
	validator *validation.Validator
	subs      []*nats.Subscription
}

// NewNATSSubscriber creates NATS subscriber
func NewNATSSubscriber(nc *nats.Conn, prefix string, commands *command.Service, scheduler *poller.Scheduler) *NATSSubscriber {
	return &NATSSubscriber{
		nc:        nc,
		prefix:    prefix,
		commands:  commands,
		scheduler: scheduler,
		validator: validation.NewValidator(),
		subs:      make([]*nats.Subscription, 0),
	}
}

// CommandSubject returns the request subject of a command
func CommandSubject(prefix, name string) string {
	return fmt.Sprintf("%s.command.%s", prefix, name)
}

type handlerFunc func(ctx context.Context, data []byte) (map[string]command.Result, error)

// Start starts subscriptions and blocks until ctx is cancelled
func (s *NATSSubscriber) Start(ctx context.Context) error {
	handlers := map[string]handlerFunc{
		"reboot":   s.handleReboot,
		"exec":     s.handleExec,
		"service":  s.handleService,
		"call":     s.handleCall,
		"wps":      s.handleWPS,
		"refresh":  s.handleRefresh,
		"snapshot": s.handleSnapshot,
		"list":     s.handleList,
	}

	for name, h := range handlers {
		subject := CommandSubject(s.prefix, name)
		sub, err := s.nc.QueueSubscribe(subject, "ubus-monitor", s.wrap(ctx, h))
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	log.Info().
		Int("subscriptions", len(s.subs)).
		Str("prefix", s.prefix).
		Msg("NATS command subscriber started")

	<-ctx.Done()
	s.unsubscribe()
	return nil
}

func (s *NATSSubscriber) unsubscribe() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("subject", sub.Subject).Msg("Failed to unsubscribe")
		}
	}
	s.subs = nil
}

// wrap decodes the request id, runs the handler and sends the reply. Requests
// without a reply subject are executed and logged only.
func (s *NATSSubscriber) wrap(ctx context.Context, h handlerFunc) nats.MsgHandler {
	return func(msg *nats.Msg) {
		log.Debug().
			Str("subject", msg.Subject).
			Int("size", len(msg.Data)).
			Msg("Received command request")

		var envelope struct {
			RequestID string `json:"requestId"`
		}
		_ = json.Unmarshal(msg.Data, &envelope)
		if envelope.RequestID == "" {
			envelope.RequestID = uuid.New().String()
		}

		reqCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()

		reply := Reply{RequestID: envelope.RequestID}
		results, err := h(reqCtx, msg.Data)
		if err != nil {
			reply.Error = err.Error()
			log.Warn().Err(err).Str("subject", msg.Subject).Str("requestId", reply.RequestID).Msg("Command request rejected")
		} else {
			reply.Results = results
		}

		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal command reply")
			return
		}
		if err := msg.Respond(data); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to send command reply")
		}
	}
}

func (s *NATSSubscriber) decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if err := s.validator.Validate(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func (s *NATSSubscriber) handleReboot(ctx context.Context, data []byte) (map[string]command.Result, error) {
	var req models.RebootRequest
	if err := s.decode(data, &req); err != nil {
		return nil, err
	}
	return s.commands.Reboot(ctx, &req), nil
}

func (s *NATSSubscriber) handleExec(ctx context.Context, data []byte) (map[string]command.Result, error) {
	var req models.ExecRequest
	if err := s.decode(data, &req); err != nil {
		return nil, err
	}
	return s.commands.Exec(ctx, &req), nil
}

func (s *NATSSubscriber) handleService(ctx context.Context, data []byte) (map[string]command.Result, error) {
	var req models.ServiceRequest
	if err := s.decode(data, &req); err != nil {
		return nil, err
	}
	return s.commands.ServiceInit(ctx, &req), nil
}

func (s *NATSSubscriber) handleCall(ctx context.Context, data []byte) (map[string]command.Result, error) {
	var req models.CallRequest
	if err := s.decode(data, &req); err != nil {
		return nil, err
	}
	return s.commands.Call(ctx, &req), nil
}

func (s *NATSSubscriber) handleWPS(ctx context.Context, data []byte) (map[string]command.Result, error) {
	var req models.WPSRequest
	if err := s.decode(data, &req); err != nil {
		return nil, err
	}
	if len(req.Devices) == 0 {
		return nil, fmt.Errorf("invalid request: devices: field is required")
	}
	return s.commands.SetWPS(ctx, &req), nil
}

func (s *NATSSubscriber) handleRefresh(ctx context.Context, data []byte) (map[string]command.Result, error) {
	var req models.DeviceSelector
	if err := s.decode(data, &req); err != nil {
		return nil, err
	}
	return s.commands.Refresh(ctx, &req), nil
}

// handleSnapshot returns the latest snapshot of each device without polling.
func (s *NATSSubscriber) handleSnapshot(_ context.Context, data []byte) (map[string]command.Result, error) {
	var req models.DeviceSelector
	if err := s.decode(data, &req); err != nil {
		return nil, err
	}

	results := make(map[string]command.Result, len(req.Devices))
	for _, id := range req.Devices {
		c, err := s.scheduler.Coordinator(id)
		if err != nil {
			results[id] = command.Result{Error: err.Error()}
			continue
		}
		snap := c.Latest()
		if snap == nil {
			results[id] = command.Result{Error: "no snapshot yet"}
			continue
		}
		results[id] = command.Result{Data: snap}
	}
	return results, nil
}

// handleList returns the cached ubus object list of each device.
func (s *NATSSubscriber) handleList(_ context.Context, data []byte) (map[string]command.Result, error) {
	var req models.DeviceSelector
	if err := s.decode(data, &req); err != nil {
		return nil, err
	}

	results := make(map[string]command.Result, len(req.Devices))
	for _, id := range req.Devices {
		c, err := s.scheduler.Coordinator(id)
		if err != nil {
			results[id] = command.Result{Error: err.Error()}
			continue
		}
		caps := c.Capabilities()
		if caps == nil {
			results[id] = command.Result{Error: "capabilities not loaded yet"}
			continue
		}
		results[id] = command.Result{Data: caps.Names()}
	}
	return results, nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/config"
	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

const mqttPublishTimeout = 5 * time.Second

// MQTTPublisher publishes JSON messages on <prefix>/<id>/event/<type> and
// <prefix>/<id>/snapshot.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg *config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("broker", cfg.BrokerURL).Msg("MQTT client connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().Err(err).Str("broker", cfg.BrokerURL).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect mqtt %s: timeout", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.BrokerURL, err)
	}

	return &MQTTPublisher{
		client: client,
		prefix: strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:    cfg.QoS,
	}, nil
}

// EventTopic returns the topic an event is published on.
func EventTopic(prefix string, e *models.Event) string {
	return fmt.Sprintf("%s/%s/event/%s", prefix, token(e.DeviceID), strings.ToLower(string(e.Type)))
}

// PublishEvent publishes the event
func (p *MQTTPublisher) PublishEvent(_ context.Context, e *models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.publish(EventTopic(p.prefix, e), data)
}

// PublishSnapshot publishes the snapshot as a retained message
func (p *MQTTPublisher) PublishSnapshot(_ context.Context, s *models.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	topic := fmt.Sprintf("%s/%s/snapshot", p.prefix, token(s.DeviceID))

	token := p.client.Publish(topic, p.qos, true, data)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return token.Error()
}

func (p *MQTTPublisher) publish(topic string, data []byte) error {
	token := p.client.Publish(topic, p.qos, false, data)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	log.Debug().Str("topic", topic).Msg("Event published to MQTT")
	return nil
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}

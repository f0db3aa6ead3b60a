package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
log:
  level: debug
nats:
  url: nats://localhost:4222
poller:
  max_workers: 4
devices:
  - id: main-router
    address: 192.168.1.1
    https: true
    port: 8443
    password: secret
    poll_interval: 60
    wifi_devices: "wlan0, wlan1"
    wan_devices: eth1
  - id: ap-1
    address: 192.168.1.2
    verify_tls: false
    wps: true
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
	if cfg.Poller.MaxWorkers != 4 || cfg.Poller.DefaultInterval != 30*time.Second {
		t.Fatalf("unexpected poller config %+v", cfg.Poller)
	}

	ids := cfg.Identities()
	if len(ids) != 2 {
		t.Fatalf("identities = %d", len(ids))
	}

	main := ids[0]
	if main.URL() != "https://192.168.1.1:8443/ubus" {
		t.Fatalf("URL = %q", main.URL())
	}
	if main.PollInterval != time.Minute {
		t.Fatalf("PollInterval = %s", main.PollInterval)
	}
	if !main.VerifyTLS {
		t.Fatal("verify_tls should default to true")
	}
	if !main.WifiDevices.Allows("wlan1") || main.WifiDevices.Allows("wlan2") {
		t.Fatalf("wifi filter = %v", main.WifiDevices.Names())
	}
	if main.Username != "root" {
		t.Fatalf("Username = %q", main.Username)
	}

	ap := ids[1]
	if ap.VerifyTLS || !ap.WPS {
		t.Fatalf("unexpected ap identity %+v", ap)
	}
	if ap.PollInterval != 30*time.Second {
		t.Fatalf("default interval not applied: %s", ap.PollInterval)
	}
	if len(ap.MeshDevices) != 0 || !ap.MeshDevices.Allows("mesh0") {
		t.Fatal("empty mesh filter should allow everything")
	}
}

func TestPasswordEnvOverride(t *testing.T) {
	t.Setenv("UBUS_PASSWORD_MAIN_ROUTER", "from-env")

	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Devices[0].Password != "from-env" {
		t.Fatalf("Password = %q", cfg.Devices[0].Password)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no devices", "log: {level: info}", "no devices"},
		{"missing address", "devices: [{id: a}]", "address is required"},
		{"duplicate id", "devices: [{id: a, address: x}, {id: a, address: y}]", "duplicate id"},
		{"bad path", "devices: [{id: a, address: x, path: ubus}]", "path must start"},
		{"bad log format", "log: {format: xml}\ndevices: [{id: a, address: x}]", "invalid log format"},
		{"mqtt without broker", "mqtt: {enabled: true}\ndevices: [{id: a, address: x}]", "broker_url"},
		{"operator without hash", "operator: {username: admin}\ndevices: [{id: a, address: x}]", "password_hash is required"},
		{"bad qos", "mqtt: {qos: 3}\ndevices: [{id: a, address: x}]", "invalid mqtt qos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

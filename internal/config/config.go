package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	JWT      JWTConfig      `yaml:"jwt"`
	Operator OperatorConfig `yaml:"operator"`
	NATS     NATSConfig     `yaml:"nats"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Poller   PollerConfig   `yaml:"poller"`
	Devices  []DeviceConfig `yaml:"devices"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

// APIConfig represents REST API configuration
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

// OperatorConfig holds the single API operator account.
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
	PublishSnapshots  bool          `yaml:"publish_snapshots"`
}

// MQTTConfig represents MQTT event delivery configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// PollerConfig represents poll scheduling configuration
type PollerConfig struct {
	MaxWorkers      int           `yaml:"max_workers"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	DefaultInterval time.Duration `yaml:"default_interval"`
}

// DeviceConfig is one managed device as written in the config file.
type DeviceConfig struct {
	ID           string `yaml:"id"`
	Address      string `yaml:"address"`
	HTTPS        bool   `yaml:"https"`
	Port         int    `yaml:"port"`
	Path         string `yaml:"path"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PollInterval int    `yaml:"poll_interval"` // seconds
	VerifyTLS    *bool  `yaml:"verify_tls"`    // default true
	WPS          bool   `yaml:"wps"`
	WifiDevices  string `yaml:"wifi_devices"`
	MeshDevices  string `yaml:"mesh_devices"`
	WanDevices   string `yaml:"wan_devices"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies environment overrides and
// defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if broker := os.Getenv("MQTT_BROKER_URL"); broker != "" {
		c.MQTT.BrokerURL = broker
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	// UBUS_PASSWORD_<ID> keeps device passwords out of the file
	for i := range c.Devices {
		if pw := os.Getenv(passwordEnvName(c.Devices[i].ID)); pw != "" {
			c.Devices[i].Password = pw
		}
	}
}

func passwordEnvName(id string) string {
	name := strings.ToUpper(id)
	name = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	return "UBUS_PASSWORD_" + name
}

// setDefaults fills in unset values
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "ubus-monitor"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = time.Hour
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "ubus"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.Server.Name
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ubus"
	}
	if c.Poller.MaxWorkers <= 0 {
		c.Poller.MaxWorkers = 10
	}
	if c.Poller.RequestTimeout <= 0 {
		c.Poller.RequestTimeout = 15 * time.Second
	}
	if c.Poller.DefaultInterval <= 0 {
		c.Poller.DefaultInterval = 30 * time.Second
	}

	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Path == "" {
			d.Path = "/ubus"
		}
		if d.Username == "" {
			d.Username = "root"
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return fmt.Errorf("no devices configured")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("device %d: id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("device %s: duplicate id", d.ID)
		}
		seen[d.ID] = true

		if d.Address == "" {
			return fmt.Errorf("device %s: address is required", d.ID)
		}
		if d.Port < 0 || d.Port > 65535 {
			return fmt.Errorf("device %s: invalid port %d", d.ID, d.Port)
		}
		if d.PollInterval < 0 {
			return fmt.Errorf("device %s: invalid poll_interval %d", d.ID, d.PollInterval)
		}
		if !strings.HasPrefix(d.Path, "/") {
			return fmt.Errorf("device %s: path must start with /", d.ID)
		}
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	if c.MQTT.Enabled && c.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt enabled without broker_url")
	}
	if c.Operator.Username != "" && c.Operator.PasswordHash == "" {
		return fmt.Errorf("operator %s: password_hash is required", c.Operator.Username)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", c.MQTT.QoS)
	}

	return nil
}

// Identities builds the immutable device identities.
func (c *Config) Identities() []*models.DeviceIdentity {
	ids := make([]*models.DeviceIdentity, 0, len(c.Devices))
	for _, d := range c.Devices {
		ids = append(ids, d.Identity(c.Poller.DefaultInterval))
	}
	return ids
}

// Identity converts the device entry. defaultInterval applies when no
// poll_interval is set.
func (d DeviceConfig) Identity(defaultInterval time.Duration) *models.DeviceIdentity {
	scheme := "http"
	if d.HTTPS {
		scheme = "https"
	}

	interval := time.Duration(d.PollInterval) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}

	return &models.DeviceIdentity{
		ID:           d.ID,
		Address:      d.Address,
		Scheme:       scheme,
		Port:         d.Port,
		Path:         d.Path,
		Username:     d.Username,
		Password:     d.Password,
		PollInterval: interval,
		VerifyTLS:    d.VerifyTLS == nil || *d.VerifyTLS,
		WPS:          d.WPS,
		WifiDevices:  models.ParseNameFilter(d.WifiDevices),
		MeshDevices:  models.ParseNameFilter(d.MeshDevices),
		WanDevices:   models.ParseNameFilter(d.WanDevices),
	}
}

// PrintConfigSummary prints a configuration summary
func (c *Config) PrintConfigSummary() {
	fmt.Printf("=== %s Configuration ===\n", c.Server.Name)
	fmt.Printf("Log: level=%s format=%s\n", c.Log.Level, c.Log.Format)
	if c.API.Enabled {
		fmt.Printf("API: %s:%d\n", c.API.Host, c.API.Port)
	}
	if c.NATS.URL != "" {
		fmt.Printf("NATS: %s (prefix %s)\n", c.NATS.URL, c.NATS.SubjectPrefix)
	}
	if c.MQTT.Enabled {
		fmt.Printf("MQTT: %s (prefix %s, qos %d)\n", c.MQTT.BrokerURL, c.MQTT.TopicPrefix, c.MQTT.QoS)
	}
	fmt.Printf("Poller: workers=%d timeout=%s\n", c.Poller.MaxWorkers, c.Poller.RequestTimeout)
	for _, id := range c.Identities() {
		fmt.Printf("  %s: %s every %s\n", id.ID, id.URL(), id.PollInterval)
		if names := id.WifiDevices.Names(); len(names) > 0 {
			fmt.Printf("    wifi: %s\n", strings.Join(names, ","))
		}
		if names := id.MeshDevices.Names(); len(names) > 0 {
			fmt.Printf("    mesh: %s\n", strings.Join(names, ","))
		}
		if names := id.WanDevices.Names(); len(names) > 0 {
			fmt.Printf("    wan: %s\n", strings.Join(names, ","))
		}
	}
	fmt.Printf("==========================================\n")
}

package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// NameFilter is an allow-list of interface names. An empty filter allows
// every name.
type NameFilter map[string]struct{}

// ParseNameFilter parses a comma-separated list, trimming each entry.
func ParseNameFilter(list string) NameFilter {
	f := NameFilter{}
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			f[name] = struct{}{}
		}
	}
	return f
}

// Allows reports whether name passes the filter.
func (f NameFilter) Allows(name string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[name]
	return ok
}

// Names returns the filter entries in sorted order.
func (f NameFilter) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeviceIdentity describes one managed device. It is built from configuration
// and never modified afterwards.
type DeviceIdentity struct {
	ID           string        `json:"id"`
	Address      string        `json:"address"`
	Scheme       string        `json:"scheme"`
	Port         int           `json:"port"`
	Path         string        `json:"path"`
	Username     string        `json:"username"`
	Password     string        `json:"-"`
	PollInterval time.Duration `json:"pollInterval"`
	VerifyTLS    bool          `json:"verifyTLS"`
	WPS          bool          `json:"wps"`

	WifiDevices NameFilter `json:"-"`
	MeshDevices NameFilter `json:"-"`
	WanDevices  NameFilter `json:"-"`
}

// URL returns the ubus endpoint of the device. The port is omitted when zero.
func (d *DeviceIdentity) URL() string {
	scheme := d.Scheme
	if scheme == "" {
		scheme = "http"
	}
	port := ""
	if d.Port > 0 {
		port = fmt.Sprintf(":%d", d.Port)
	}
	return fmt.Sprintf("%s://%s%s%s", scheme, d.Address, port, d.Path)
}

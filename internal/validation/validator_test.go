package validation

import (
	"strings"
	"testing"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		in      interface{}
		wantErr string
	}{
		{"valid exec", &models.ExecRequest{Devices: []string{"ap1"}, Command: "uptime"}, ""},
		{"no devices", &models.ExecRequest{Devices: []string{}, Command: "uptime"}, "devices"},
		{"no command", &models.ExecRequest{Devices: []string{"ap1"}}, "command"},
		{"bad action", &models.ServiceRequest{Devices: []string{"ap1"}, Name: "dnsmasq", Action: "explode"}, "action"},
		{"good action", &models.ServiceRequest{Devices: []string{"ap1"}, Name: "dnsmasq", Action: "restart"}, ""},
		{"wps without devices", &models.WPSRequest{Interface: "wlan0"}, ""},
		{"not a struct", "nope", "struct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestMinMax(t *testing.T) {
	type login struct {
		Username string `json:"username" validate:"required,min=3,max=8"`
	}
	v := NewValidator()

	if err := v.Validate(login{Username: "ab"}); err == nil {
		t.Error("short username accepted")
	}
	if err := v.Validate(login{Username: "abcdefghi"}); err == nil {
		t.Error("long username accepted")
	}
	if err := v.Validate(login{Username: "admin"}); err != nil {
		t.Errorf("valid username rejected: %v", err)
	}
}

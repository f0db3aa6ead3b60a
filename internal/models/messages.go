package models

// Command requests accepted by the REST API and the NATS command subjects.
// Devices selects the target devices by id.

// RebootRequest reboots the selected devices
type RebootRequest struct {
	Devices []string `json:"devices" validate:"required"`
}

// ExecRequest runs a shell command on the selected devices
type ExecRequest struct {
	Devices  []string          `json:"devices" validate:"required"`
	Command  string            `json:"command" validate:"required"`
	Params   []string          `json:"params,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Metadata Variables         `json:"metadata,omitempty"`
}

// ServiceRequest runs an init action on a service
type ServiceRequest struct {
	Devices []string `json:"devices" validate:"required"`
	Name    string   `json:"name" validate:"required"`
	Action  string   `json:"action" validate:"required,oneof=start|stop|restart|reload|enable|disable"`
}

// CallRequest is a raw ubus call
type CallRequest struct {
	Devices   []string  `json:"devices" validate:"required"`
	Subsystem string    `json:"subsystem" validate:"required"`
	Method    string    `json:"method" validate:"required"`
	Params    Variables `json:"params,omitempty"`
}

// WPSRequest starts or cancels WPS on one access point
type WPSRequest struct {
	Devices   []string `json:"devices,omitempty"`
	Interface string   `json:"interface" validate:"required"`
	Enable    bool     `json:"enable"`
}

// DeviceSelector names devices for commands without arguments (refresh,
// snapshot, list)
type DeviceSelector struct {
	Devices []string `json:"devices" validate:"required"`
}

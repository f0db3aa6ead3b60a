package models

import (
	"math"
	"time"
)

// DeviceInfo is the board identity reported by system.board.
type DeviceInfo struct {
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
	SWVersion    string `json:"swVersion"`
}

// ClientInfo is one associated wireless station.
type ClientInfo struct {
	Signal int `json:"signal"`
}

// APStats holds the state of one access-point interface.
type APStats struct {
	Clients int                   `json:"clients"`
	Macs    map[string]ClientInfo `json:"macs"`
	// WPS is nil when WPS polling is disabled or unsupported.
	WPS *bool `json:"wps,omitempty"`
}

// MeshPeer is the link quality towards one mesh neighbour.
type MeshPeer struct {
	Active bool `json:"active"`
	Signal int  `json:"signal"`
	Noise  int  `json:"noise"`
}

// MeshStats holds the state of one mesh interface.
type MeshStats struct {
	MAC     string              `json:"mac"`
	Signal  int                 `json:"signal"`
	ID      string              `json:"id"`
	Noise   int                 `json:"noise"`
	Bitrate int                 `json:"bitrate"`
	Peers   map[string]MeshPeer `json:"peers"`
}

// LinkStats is the mwan3 view of one WAN link.
type LinkStats struct {
	OfflineSec int64  `json:"offlineSec"`
	OnlineSec  int64  `json:"onlineSec"`
	UptimeSec  int64  `json:"uptimeSec"`
	Online     bool   `json:"online"`
	Status     string `json:"status"`
	Up         bool   `json:"up"`
}

// WanStats holds counters of one network device.
type WanStats struct {
	Up      bool   `json:"up"`
	RxBytes int64  `json:"rxBytes"`
	TxBytes int64  `json:"txBytes"`
	Speed   string `json:"speed,omitempty"`
	MAC     string `json:"mac,omitempty"`
}

// Snapshot is the result of one poll cycle. A published snapshot is never
// modified.
type Snapshot struct {
	DeviceID  string               `json:"deviceId"`
	UpdatedAt time.Time            `json:"updatedAt"`
	Info      DeviceInfo           `json:"info"`
	Wireless  map[string]APStats   `json:"wireless"`
	Mesh      map[string]MeshStats `json:"mesh"`
	Mwan3     map[string]LinkStats `json:"mwan3"`
	Wan       map[string]WanStats  `json:"wan"`
}

// NewSnapshot returns a snapshot with every section initialised empty.
func NewSnapshot(deviceID string) *Snapshot {
	return &Snapshot{
		DeviceID:  deviceID,
		UpdatedAt: time.Now(),
		Wireless:  map[string]APStats{},
		Mesh:      map[string]MeshStats{},
		Mwan3:     map[string]LinkStats{},
		Wan:       map[string]WanStats{},
	}
}

// TotalClients sums the clients of every access-point interface.
func (s *Snapshot) TotalClients() int {
	total := 0
	for _, ap := range s.Wireless {
		total += ap.Clients
	}
	return total
}

// ActivePeers counts peers with an established mesh link.
func (m MeshStats) ActivePeers() int {
	n := 0
	for _, p := range m.Peers {
		if p.Active {
			n++
		}
	}
	return n
}

// signalLevels are the dBm thresholds of signal bars, best first.
var signalLevels = []int{-50, -60, -67, -70, -80}

// SignalLevel maps the signal to 0 (best) .. 5 (no signal).
func (m MeshStats) SignalLevel() int {
	for idx, level := range signalLevels {
		if m.Signal >= level {
			return idx
		}
	}
	return len(signalLevels)
}

// OnlineRatio returns the online percentage rounded to one decimal. A link
// without uptime counts as fully online.
func (l LinkStats) OnlineRatio() float64 {
	if l.UptimeSec == 0 {
		return 100
	}
	ratio := float64(l.OnlineSec) / float64(l.UptimeSec) * 100
	return math.Round(ratio*10) / 10
}

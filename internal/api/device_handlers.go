package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openwrt-tools/ubus-monitor/internal/models"
	"github.com/openwrt-tools/ubus-monitor/internal/poller"
	"github.com/openwrt-tools/ubus-monitor/pkg/ubus"
)

// DeviceSummary is the list view of one device
type DeviceSummary struct {
	ID           string             `json:"id"`
	URL          string             `json:"url"`
	PollInterval string             `json:"pollInterval"`
	Session      string             `json:"session,omitempty"`
	UpdatedAt    *time.Time         `json:"updatedAt,omitempty"`
	Info         *models.DeviceInfo `json:"info,omitempty"`
	TotalClients int                `json:"totalClients"`
	ActivePeers  int                `json:"activePeers"`
	WanOnline    map[string]float64 `json:"wanOnlineRatio,omitempty"`
}

type sessionStater interface {
	State() ubus.SessionState
}

func summarize(c *poller.Coordinator) DeviceSummary {
	dev := c.Device()
	sum := DeviceSummary{
		ID:           dev.ID,
		URL:          dev.URL(),
		PollInterval: dev.PollInterval.String(),
	}
	if st, ok := c.Client().(sessionStater); ok {
		sum.Session = st.State().String()
	}

	snap := c.Latest()
	if snap == nil {
		return sum
	}

	updated := snap.UpdatedAt
	info := snap.Info
	sum.UpdatedAt = &updated
	sum.Info = &info
	sum.TotalClients = snap.TotalClients()
	for _, mesh := range snap.Mesh {
		sum.ActivePeers += mesh.ActivePeers()
	}
	if len(snap.Mwan3) > 0 {
		sum.WanOnline = make(map[string]float64, len(snap.Mwan3))
		for name, link := range snap.Mwan3 {
			sum.WanOnline[name] = link.OnlineRatio()
		}
	}
	return sum
}

// coordinator resolves the {id} URL parameter. It responds and returns nil
// when the device is unknown.
func (s *RESTServer) coordinator(w http.ResponseWriter, r *http.Request) *poller.Coordinator {
	c, err := s.scheduler.Coordinator(chi.URLParam(r, "id"))
	if errors.Is(err, poller.ErrUnknownDevice) {
		s.respondError(w, http.StatusNotFound, "device not found")
		return nil
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	return c
}

// HandleListDevices lists all devices with a short summary
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	coordinators := s.scheduler.Coordinators()
	devices := make([]DeviceSummary, 0, len(coordinators))
	for _, c := range coordinators {
		devices = append(devices, summarize(c))
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   len(devices),
	})
}

// HandleGetDevice returns the summary of one device
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}
	s.respondJSON(w, http.StatusOK, summarize(c))
}

// HandleGetSnapshot returns the latest snapshot
func (s *RESTServer) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}

	snap := c.Latest()
	if snap == nil {
		s.respondError(w, http.StatusNotFound, "no snapshot yet")
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

// HandleGetCapabilities returns the ubus objects the device exposes
func (s *RESTServer) HandleGetCapabilities(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}

	caps := c.Capabilities()
	if caps == nil {
		s.respondError(w, http.StatusNotFound, "capabilities not loaded yet")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"objects": caps.Names(),
	})
}

// HandleRefreshDevice schedules an immediate poll cycle
func (s *RESTServer) HandleRefreshDevice(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}

	c.RequestRefresh()
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "refresh scheduled",
	})
}

// HandleSetWPS starts or cancels WPS on an access point of the device
func (s *RESTServer) HandleSetWPS(w http.ResponseWriter, r *http.Request) {
	c := s.coordinator(w, r)
	if c == nil {
		return
	}

	var req models.WPSRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Devices = []string{c.Device().ID}

	result := s.commands.SetWPS(r.Context(), &req)[c.Device().ID]
	if result.Error != "" {
		s.respondError(w, http.StatusBadGateway, result.Error)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"interface": req.Interface,
		"enable":    req.Enable,
	})
}

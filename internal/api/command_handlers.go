package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/auth"
	"github.com/openwrt-tools/ubus-monitor/internal/command"
	"github.com/openwrt-tools/ubus-monitor/internal/models"
)

// operator returns the username of the authenticated caller, if any.
func operator(r *http.Request) string {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims.Username
	}
	return ""
}

func (s *RESTServer) respondResults(w http.ResponseWriter, r *http.Request, name string, results map[string]command.Result) {
	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}

	log.Info().
		Str("command", name).
		Str("operator", operator(r)).
		Int("devices", len(results)).
		Int("failed", failed).
		Msg("Command executed")

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// HandleReboot reboots the selected devices
func (s *RESTServer) HandleReboot(w http.ResponseWriter, r *http.Request) {
	var req models.RebootRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respondResults(w, r, "reboot", s.commands.Reboot(r.Context(), &req))
}

// HandleExec runs a shell command on the selected devices
func (s *RESTServer) HandleExec(w http.ResponseWriter, r *http.Request) {
	var req models.ExecRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respondResults(w, r, "exec", s.commands.Exec(r.Context(), &req))
}

// HandleServiceInit runs a service init action on the selected devices
func (s *RESTServer) HandleServiceInit(w http.ResponseWriter, r *http.Request) {
	var req models.ServiceRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respondResults(w, r, "service", s.commands.ServiceInit(r.Context(), &req))
}

// HandleCall passes a raw ubus call to the selected devices
func (s *RESTServer) HandleCall(w http.ResponseWriter, r *http.Request) {
	var req models.CallRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respondResults(w, r, "call", s.commands.Call(r.Context(), &req))
}

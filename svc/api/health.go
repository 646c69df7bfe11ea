package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"pbin/svc/util"
)

type HealthResponse struct {
	Status string `json:"status"`
}
type ReadyResponse struct {
	Ready    bool   `json:"ready"`
	Degraded bool   `json:"degraded"`
	History  string `json:"history"`
	Sessions string `json:"sessions"`
	Session  string `json:"session"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// Ready pings whichever stores are configured. A down store makes the bridge
// not ready; an unconfigured one is reported as "disabled".
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp := ReadyResponse{
		Ready:    true,
		History:  probe(ctx, s.history, "history"),
		Sessions: probe(ctx, s.sessions, "session store"),
		Session:  s.paste.SessionState(),
	}
	if resp.History == "down" || resp.Sessions == "down" {
		resp.Ready = false
		resp.Degraded = true
	}
	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}
func probe(ctx context.Context, p Pinger, name string) string {
	if p == nil {
		return "disabled"
	}
	pctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := p.Ping(pctx); err != nil {
		util.Error().Err(err).Str("store", name).Msg("health check failed")
		return "down"
	}
	return "up"
}

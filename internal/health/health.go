// Package health exposes liveness and health endpoints. Health reports the
// resolved team sizes so operators can spot a misconfigured roster without
// reading logs.
package health

import (
	"context"
	"encoding/json"
	"net/http"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates the tracker is reachable and teams resolved.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates the exporter runs but no team member resolved.
	ModeDegraded Mode = "degraded"
	// ModeUnhealthy indicates the last collection cycle failed entirely.
	ModeUnhealthy Mode = "unhealthy"
)

// Status represents evaluated application health.
type Status struct {
	Status     Mode `json:"status"`
	Developers int  `json:"developers"`
	QATeam     int  `json:"qa_team"`
	PMTeam     int  `json:"pm_team"`
}

// Provider supplies current health status.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}

// Evaluate derives the mode from roster sizes and the last cycle outcome.
func Evaluate(developers, qaTeam, pmTeam int, lastCycleOK bool) Status {
	mode := ModeHealthy
	if developers == 0 && qaTeam == 0 && pmTeam == 0 {
		mode = ModeDegraded
	}
	if !lastCycleOK {
		mode = ModeUnhealthy
	}
	return Status{
		Status:     mode,
		Developers: developers,
		QATeam:     qaTeam,
		PMTeam:     pmTeam,
	}
}

// NewHandler returns the health HTTP handler with /livez and /health
// endpoints plus a root confirmation page.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			return
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		payload, err := json.Marshal(status)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, writeErr := w.Write([]byte(`{"status":"unhealthy","error":"marshal health status"}`)); writeErr != nil {
				return
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		code := http.StatusOK
		if status.Status == ModeUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		if _, err := w.Write(payload); err != nil {
			return
		}
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("jira flow exporter is running")); err != nil {
			return
		}
	})

	return mux
}

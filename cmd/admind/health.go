package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/clusteradmin/internal/bus"
	"github.com/rickgao/clusteradmin/internal/connection"
	"github.com/rickgao/clusteradmin/internal/metrics"
)

// busHealth is the view of the bus the health check needs.
type busHealth interface {
	IsConnected() bool
	Stats() bus.CorrelatorStats
}

// serverHealth is the view of the admin server the health check needs.
type serverHealth interface {
	Stats() connection.ServerStats
}

// pinger checks a database connection. nil when auditing is disabled.
type pinger interface {
	Ping(ctx context.Context) error
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(b busHealth, srv serverHealth, db pinger, metricsPath string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, metrics.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check backend bus
		bs := b.Stats()
		busComponent := map[string]any{
			"outstanding": bs.Outstanding,
			"timed_out":   bs.TimedOut,
			"late":        bs.Late,
		}
		if b.IsConnected() {
			busComponent["status"] = "connected"
		} else {
			health.Status = "unhealthy"
			busComponent["status"] = "disconnected"
		}
		health.Components["nats"] = busComponent

		// Check audit database; audit failures never affect clients
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
				health.Components["audit_db"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
				logger.Warn("audit database ping failed", "error", err)
			} else {
				health.Components["audit_db"] = "connected"
			}
		}

		ss := srv.Stats()
		health.Components["admin_server"] = map[string]any{
			"active":   ss.Active,
			"accepted": ss.Accepted,
			"rejected": ss.Rejected,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}

package http

import (
	"net/http"
	"time"

	"github.com/GriffinCanCode/microhost/internal/host"
	"github.com/GriffinCanCode/microhost/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
)

// MetricsSnapshot is the JSON view of host and request metrics.
type MetricsSnapshot struct {
	Timestamp time.Time            `json:"timestamp"`
	Host      host.Stats           `json:"host"`
	Requests  *monitoring.Snapshot `json:"requests,omitempty"`
	Summary   MetricsSummary       `json:"summary"`
}

// MetricsSummary provides high-level metrics.
type MetricsSummary struct {
	ErrorRate       float64 `json:"error_rate"`
	ScriptErrorRate float64 `json:"script_error_rate"`
	ActiveApps      int     `json:"active_apps"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// MetricsSummary returns a JSON snapshot for dashboards.
func (h *Handlers) MetricsSummary(c *gin.Context) {
	stats, err := h.host.Stats()
	if err != nil {
		fail(c, err)
		return
	}

	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Host:      stats,
		Summary: MetricsSummary{
			ActiveApps:    len(h.host.ActiveApps(true)),
			UptimeSeconds: time.Since(h.started).Seconds(),
		},
	}
	if h.metrics != nil {
		req := h.metrics.Snapshot()
		snapshot.Requests = &req
		snapshot.Summary.ErrorRate = ratio(req.TotalErrors, req.TotalRequests)
		snapshot.Summary.ScriptErrorRate = ratio(req.ScriptErrors, req.ScriptsRun)
	}

	c.JSON(http.StatusOK, snapshot)
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

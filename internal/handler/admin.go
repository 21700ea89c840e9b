package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"resellhub/internal/supervisor"
	"resellhub/pkg/response"
)

// StatsSource reports store statistics.
type StatsSource interface {
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// QueueDepth reports event queue backlog.
type QueueDepth interface {
	Depth(ctx context.Context) (map[string]int64, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	store      StatsSource
	queue      QueueDepth
	supervisor *supervisor.Supervisor
	dbType     string
	startTime  time.Time
}

// NewAdminHandler creates a new admin handler. queue and sup may be nil.
func NewAdminHandler(store StatsSource, queue QueueDepth, sup *supervisor.Supervisor, dbType string) *AdminHandler {
	return &AdminHandler{
		store:      store,
		queue:      queue,
		supervisor: sup,
		dbType:     dbType,
		startTime:  time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.store != nil {
		storeStats, err := h.store.Stats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	if h.queue != nil {
		depth, err := h.queue.Depth(ctx)
		if err == nil {
			stats["queue"] = depth
		} else {
			stats["queue"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["queue"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	if h.supervisor != nil {
		workers := h.supervisor.Running()
		stats["supervisor"] = map[string]interface{}{
			"running": len(workers),
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

package handler

import (
	"net/http"
	"runtime"
	"time"

	"grandgold-errcache/internal/service"
	"grandgold-errcache/pkg/apierror"
	"grandgold-errcache/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	svc       *service.SuppressionService
	cleanup   *service.CleanupScheduler
	storeType string
	logType   string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. cleanup is nil when no
// decision log is configured.
func NewAdminHandler(
	svc *service.SuppressionService,
	cleanup *service.CleanupScheduler,
	storeType string,
	logType string,
) *AdminHandler {
	return &AdminHandler{
		svc:       svc,
		cleanup:   cleanup,
		storeType: storeType,
		logType:   logType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["store_type"] = h.storeType
	stats["decision_log_type"] = h.logType
	stats["error_cache"] = h.svc.Stats(r.Context())

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// RunCleanup handles POST /api/v1/admin/cleanup
func (h *AdminHandler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	if h.cleanup == nil {
		response.Error(w, apierror.ServiceUnavailable(service.ErrDecisionLogDisabled.Error()))
		return
	}

	deleted, err := h.cleanup.RunNow()
	if err != nil {
		response.Error(w, apierror.InternalError("decision log cleanup failed"))
		return
	}

	response.OK(w, map[string]interface{}{"deleted": deleted})
}

package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves process and host telemetry
type SystemHandlers struct {
	dataDir string
	started time.Time
	log     zerolog.Logger
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(dataDir string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		dataDir: dataDir,
		started: time.Now(),
		log:     log.With().Str("handler", "system").Logger(),
	}
}

// HandleSystemStatus returns host and process statistics
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.systemStats()

	result := map[string]any{
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"cpu_percent":    cpuPct,
		"memory_percent": memPct,
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
	}

	if usage, err := disk.Usage(h.dataDir); err == nil {
		result["disk"] = map[string]any{
			"path":         h.dataDir,
			"used_percent": usage.UsedPercent,
			"free_bytes":   usage.Free,
		}
	} else {
		h.log.Warn().Err(err).Str("path", h.dataDir).Msg("Failed to get disk usage")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// systemStats samples CPU and RAM usage. The short CPU interval keeps the
// endpoint responsive for pollers.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return firstOrZero(cpuPercent), 0
	}

	return firstOrZero(cpuPercent), memStat.UsedPercent
}

func firstOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[0]
}

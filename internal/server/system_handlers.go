package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mhalford/revcast/internal/config"
)

// SystemHandlers serves host-level health and process information.
type SystemHandlers struct {
	log       zerolog.Logger
	cfg       *config.Config
	startedAt time.Time
}

// NewSystemHandlers creates new system handlers
func NewSystemHandlers(log zerolog.Logger, cfg *config.Config) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("component", "system_handlers").Logger(),
		cfg:       cfg,
		startedAt: time.Now(),
	}
}

// HandleSystemHealth reports CPU, memory and data-directory disk usage.
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	}

	if percentages, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percentages) > 0 {
		response["cpu_percent"] = percentages[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read CPU usage")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		response["memory"] = map[string]interface{}{
			"total_mb":     vm.Total / 1024 / 1024,
			"used_mb":      vm.Used / 1024 / 1024,
			"used_percent": vm.UsedPercent,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to read memory usage")
	}

	if usage, err := disk.Usage(h.cfg.DataDir); err == nil {
		response["disk"] = map[string]interface{}{
			"path":         h.cfg.DataDir,
			"total_gb":     float64(usage.Total) / 1024 / 1024 / 1024,
			"free_gb":      float64(usage.Free) / 1024 / 1024 / 1024,
			"used_percent": usage.UsedPercent,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to read disk usage")
	}

	writeJSON(h.log, w, http.StatusOK, response)
}

// HandleSystemInfo reports process and configuration details.
func (h *SystemHandlers) HandleSystemInfo(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"go_version":     runtime.Version(),
		"num_goroutines": runtime.NumGoroutine(),
		"num_cpu":        runtime.NumCPU(),
		"data_dir":       h.cfg.DataDir,
		"run_schedule":   h.cfg.RunSchedule,
		"export_enabled": h.cfg.ExportEnabled,
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
	}

	writeJSON(h.log, w, http.StatusOK, response)
}

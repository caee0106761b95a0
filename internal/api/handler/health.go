package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/threadgrabba/internal/domain"
	"github.com/iconidentify/threadgrabba/internal/repository"
	"github.com/iconidentify/threadgrabba/internal/scheduler"
)

var startTime = time.Now()

// Pinger checks a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SweepReporter exposes the most recent retry sweep.
type SweepReporter interface {
	LastSweep() *scheduler.SweepReport
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	jobRepo   repository.JobRepository
	tasks     repository.TaskRepository
	db        Pinger
	sweeps    SweepReporter
	notesPath string
}

// NewHealthHandler creates a new health handler. db and sweeps may be nil.
func NewHealthHandler(
	jobRepo repository.JobRepository,
	tasks repository.TaskRepository,
	db Pinger,
	sweeps SweepReporter,
	notesPath string,
) *HealthHandler {
	return &HealthHandler{
		jobRepo:   jobRepo,
		tasks:     tasks,
		db:        db,
		sweeps:    sweeps,
		notesPath: notesPath,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
	Queue     *repository.QueueStats `json:"queue,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	notReady := func(err error) {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Error:     err.Error(),
		})
	}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			notReady(fmt.Errorf("database: %w", err))
			return
		}
	}

	stats, err := h.jobRepo.Stats(ctx)
	if err != nil {
		notReady(fmt.Errorf("job queue: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Queue:     stats,
	})
}

// SystemStats contains process and backlog statistics.
type SystemStats struct {
	Uptime        int64                  `json:"uptime_seconds"`
	UptimeHuman   string                 `json:"uptime_human"`
	MemAllocMB    int64                  `json:"mem_alloc_mb"`
	MemSysMB      int64                  `json:"mem_sys_mb"`
	NumGoroutines int                    `json:"num_goroutines"`
	NumCPU        int                    `json:"num_cpu"`
	CPUPercent    float64                `json:"cpu_percent"`
	NotesPath     string                 `json:"notes_path"`
	DiskFree      string                 `json:"disk_free,omitempty"`
	DiskUsedPct   float64                `json:"disk_used_pct"`
	Queue         *repository.QueueStats `json:"queue,omitempty"`
	PendingTasks  int                    `json:"pending_tasks"`
	LastSweep     *scheduler.SweepReport `json:"last_sweep,omitempty"`
}

// Stats handles GET /api/v1/stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPercent:    getCPUUsage(),
		NotesPath:     h.notesPath,
	}

	if total, free, _, usedPct := getDiskStats(h.notesPath); total > 0 {
		stats.DiskFree = humanize.Bytes(uint64(free))
		stats.DiskUsedPct = usedPct
	}

	ctx := r.Context()
	if q, err := h.jobRepo.Stats(ctx); err == nil {
		stats.Queue = q
	}
	if h.tasks != nil {
		if n, err := h.tasks.CountTasks(ctx, domain.TaskStatusPending); err == nil {
			stats.PendingTasks = n
		}
	}
	if h.sweeps != nil {
		stats.LastSweep = h.sweeps.LastSweep()
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

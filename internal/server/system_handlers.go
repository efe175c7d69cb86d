package server

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/aristath/sentinel-vault/internal/reliability"
	"github.com/aristath/sentinel-vault/internal/scheduler"
	"github.com/aristath/sentinel-vault/internal/utils"
)

// JobRunner executes a job outside its schedule
type JobRunner interface {
	RunNow(job scheduler.Job) error
}

// BackupLister lists uploaded backups
type BackupLister interface {
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// SystemHandlers handles system-wide monitoring and job triggers
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	dataDir   string
	version   string
	startedAt time.Time
	jobs      map[string]scheduler.Job
	runner    JobRunner
	backups   BackupLister // nil when backups are disabled

	// Overridable host metric sources
	cpuPercent func() ([]float64, error)
	memory     func() (*mem.VirtualMemoryStat, error)
	diskUsage  func(path string) (*disk.UsageStat, error)
	hostInfo   func() (*host.InfoStat, error)
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	db *database.DB,
	dataDir string,
	version string,
	jobs map[string]scheduler.Job,
	runner JobRunner,
	backups BackupLister,
) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		db:        db,
		dataDir:   dataDir,
		version:   version,
		startedAt: time.Now(),
		jobs:      jobs,
		runner:    runner,
		backups:   backups,
		cpuPercent: func() ([]float64, error) {
			return cpu.Percent(100*time.Millisecond, false)
		},
		memory:    mem.VirtualMemory,
		diskUsage: disk.Usage,
		hostInfo:  host.Info,
	}
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Version       string  `json:"version"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Hostname      string  `json:"hostname,omitempty"`
	Platform      string  `json:"platform,omitempty"`
	GoVersion     string  `json:"go_version"`
	Goroutines    int     `json:"goroutines"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskFreeMB    float64 `json:"disk_free_mb"`
	DiskPercent   float64 `json:"disk_percent"`
	LastChecked   string  `json:"last_checked"`
}

// DatabaseStatsResponse is returned by GET /api/system/database
type DatabaseStatsResponse struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	Profile       string  `json:"profile"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	FreelistCount int64   `json:"freelist_count"`
}

// JobsResponse is returned by GET /api/system/jobs
type JobsResponse struct {
	Jobs []string `json:"jobs"`
}

// RegisterRoutes registers system routes under /system
func (h *SystemHandlers) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database", h.HandleDatabaseStats)
		r.Get("/jobs", h.HandleListJobs)
		r.Get("/backups", h.HandleListBackups)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/jobs/{name}", h.HandleTriggerJob)
		})
	})
}

// HandleSystemStatus returns host and process status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	response := SystemStatusResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		LastChecked:   time.Now().Format(time.RFC3339),
	}

	if info, err := h.hostInfo(); err == nil {
		response.Hostname = info.Hostname
		response.Platform = info.Platform
	} else {
		h.log.Warn().Err(err).Msg("Failed to get host info")
	}

	if percents, err := h.cpuPercent(); err == nil && len(percents) > 0 {
		response.CPUPercent = percents[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	}

	if memStat, err := h.memory(); err == nil {
		response.MemoryPercent = memStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	if usage, err := h.diskUsage(h.dataDir); err == nil {
		response.DiskFreeMB = float64(usage.Free) / 1024 / 1024
		response.DiskPercent = usage.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to get disk usage")
	}

	utils.WriteJSON(w, http.StatusOK, response, h.log)
}

// HandleDatabaseStats returns vault database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, DatabaseStatsResponse{
		Name:          h.db.Name(),
		Path:          h.db.Path(),
		Profile:       string(h.db.Profile()),
		SizeMB:        float64(stats.SizeBytes) / 1024 / 1024,
		WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
		PageCount:     stats.PageCount,
		FreelistCount: stats.FreelistCount,
	}, h.log)
}

// HandleListJobs returns the names of triggerable jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	utils.WriteJSON(w, http.StatusOK, JobsResponse{Jobs: names}, h.log)
}

// HandleListBackups returns uploaded backups, newest first
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		utils.WriteErrorMessage(w, http.StatusNotFound, "backups are not configured", h.log)
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, backups, h.log)
}

// HandleTriggerJob runs a job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		utils.WriteErrorMessage(w, http.StatusNotFound, "unknown job: "+name, h.log)
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")
	if err := h.runner.RunNow(job); err != nil {
		if errors.Is(err, scheduler.ErrJobRunning) {
			utils.WriteErrorMessage(w, http.StatusConflict, err.Error(), h.log)
			return
		}
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"job":    name,
	}, h.log)
}

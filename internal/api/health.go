package api

import (
	"net/http"
	"runtime"
	"time"

	"vip/internal/dispatch"
	"vip/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// StatsResponse reports dispatcher and process state.
type StatsResponse struct {
	Dispatch     dispatch.Stats    `json:"dispatch"`
	Memory       *MemoryHealthInfo `json:"memory"`
	RunsEnabled  bool              `json:"runsEnabled"`
	TrainGuarded bool              `json:"trainGuarded"`
	Uptime       string            `json:"uptime"`
	Timestamp    time.Time         `json:"timestamp"`
}

// MemoryHealthInfo contains memory usage information
type MemoryHealthInfo struct {
	AllocMB      float64 `json:"allocMb"`
	SysMB        float64 `json:"sysMb"`
	NumGC        uint32  `json:"numGc"`
	NumGoroutine int     `json:"numGoroutine"`
}

// handleHealth responds to liveness checks. A stopped dispatcher can no
// longer serve train or predict, so it reports 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    s.uptime(),
	}

	status := http.StatusOK
	if !s.dispatcher.IsRunning() {
		response.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	WriteJSON(w, response, status)
}

// handleStats handles GET /stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := StatsResponse{
		Dispatch: s.dispatcher.Stats(),
		Memory: &MemoryHealthInfo{
			AllocMB:      float64(memStats.Alloc) / 1024 / 1024,
			SysMB:        float64(memStats.Sys) / 1024 / 1024,
			NumGC:        memStats.NumGC,
			NumGoroutine: runtime.NumGoroutine(),
		},
		RunsEnabled:  s.runs != nil,
		TrainGuarded: s.guard.Enabled(),
		Uptime:       s.uptime(),
		Timestamp:    time.Now().UTC(),
	}

	WriteJSON(w, response, http.StatusOK)
}

func (s *Server) uptime() string {
	return time.Since(s.startedAt).Round(time.Second).String()
}

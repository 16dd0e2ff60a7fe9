package api

import (
	"net/http"
	"runtime"
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string       `json:"status"`
	Timestamp    time.Time    `json:"timestamp"`
	Uptime       string       `json:"uptime,omitempty"`
	CacheBackend string       `json:"cache_backend"`
	AuditBackend string       `json:"audit_backend"`
	Memory       *MemoryStats `json:"memory,omitempty"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	AllocMB      uint64 `json:"alloc_mb"`
	TotalAllocMB uint64 `json:"total_alloc_mb"`
	SysMB        uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
}

var startTime = time.Now()

// HandleHealth returns the health status of the application along with the
// backends it is actually running on.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:       "ok",
		Timestamp:    time.Now(),
		Uptime:       time.Since(startTime).String(),
		CacheBackend: s.store.Backend(),
		AuditBackend: s.recorder.Backend(),
		Memory: &MemoryStats{
			AllocMB:      m.Alloc / 1024 / 1024,
			TotalAllocMB: m.TotalAlloc / 1024 / 1024,
			SysMB:        m.Sys / 1024 / 1024,
			NumGC:        m.NumGC,
		},
	}

	s.respondJSON(w, http.StatusOK, response)
}

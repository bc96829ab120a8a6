package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics collects basic application metrics as JSON counters.
type Metrics struct {
	wsConnections   atomic.Int64
	activeSessions  atomic.Int64
	sessionsPlayed  atomic.Int64
	scoresSubmitted atomic.Int64
	globalFailures  atomic.Int64
	startTime       time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrWSConn()          { m.wsConnections.Add(1) }
func (m *Metrics) DecrWSConn()          { m.wsConnections.Add(-1) }
func (m *Metrics) IncrSessions()        { m.activeSessions.Add(1) }
func (m *Metrics) DecrSessions()        { m.activeSessions.Add(-1) }
func (m *Metrics) IncrSessionsPlayed()  { m.sessionsPlayed.Add(1) }
func (m *Metrics) IncrScoresSubmitted() { m.scoresSubmitted.Add(1) }
func (m *Metrics) IncrGlobalFailures()  { m.globalFailures.Add(1) }

// Snapshot returns the current counter values keyed by metric name.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"ws_connections":   m.wsConnections.Load(),
		"active_sessions":  m.activeSessions.Load(),
		"sessions_played":  m.sessionsPlayed.Load(),
		"scores_submitted": m.scoresSubmitted.Load(),
		"global_failures":  m.globalFailures.Load(),
	}
}

// ServeHTTP exposes metrics as JSON at /metrics.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	data := map[string]any{
		"uptime_seconds": int(time.Since(m.startTime).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  mem.HeapAlloc / 1024 / 1024,
		"sys_mb":         mem.Sys / 1024 / 1024,
	}
	for k, v := range m.Snapshot() {
		data[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}

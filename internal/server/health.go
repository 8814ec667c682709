package server

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/agentbroker/broker/pkg/types"
)

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	stored, err := s.mgr.List(r.Context(), "", types.StatusActive)
	storedCount := len(stored)
	if err != nil {
		storedCount = -1
	}

	info := types.HealthInfo{
		Status:         "ok",
		Version:        Version,
		ActiveSessions: s.mgr.ActiveSessionCount(),
		StoredSessions: storedCount,
		StorageType:    string(s.storageKind),
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
		RSSMb:          selfRSSMB(),
	}
	writeJSON(w, http.StatusOK, info)
}

// selfRSSMB reports the broker process's own resident set size, in
// megabytes, best-effort.
func selfRSSMB() float64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	mem, err := proc.MemoryInfo()
	if err != nil || mem == nil {
		return 0
	}
	return float64(mem.RSS) / (1024 * 1024)
}

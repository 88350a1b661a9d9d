package server

import (
	"net/http"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// systemStatusResponse reports process and host resource usage.
type systemStatusResponse struct {
	Status       string  `json:"status"`
	UptimeSecs   uint64  `json:"uptime_seconds"`
	CPUPercent   float64 `json:"cpu_percent"`
	MemUsedMB    float64 `json:"mem_used_mb"`
	MemTotalMB   float64 `json:"mem_total_mb"`
	DBOpenConns  int     `json:"db_open_connections"`
	DBInUseConns int     `json:"db_in_use_connections"`
}

// handleSystemStatus returns host CPU/memory usage and the application
// database's connection-pool stats.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := systemStatusResponse{Status: "running"}

	if uptime, err := host.Uptime(); err == nil {
		resp.UptimeSecs = uptime
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemUsedMB = float64(vm.Used) / 1024 / 1024
		resp.MemTotalMB = float64(vm.Total) / 1024 / 1024
	}
	if s.db != nil {
		stats := s.db.GetStats()
		resp.DBOpenConns = stats.OpenConnections
		resp.DBInUseConns = stats.InUse
	}

	s.writeJSON(w, http.StatusOK, resp)
}

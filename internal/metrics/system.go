package metrics

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a point-in-time view of the machine the engine runs on.
type HostStats struct {
	UptimeSeconds uint64
	CPUPercent    float64
	MemUsed       uint64
	MemTotal      uint64
	MemPercent    float64
}

// SystemSnapshot gathers host stats. Failures leave fields at zero; a
// metrics scrape should never error out because a probe did.
func SystemSnapshot() HostStats {
	var s HostStats

	if info, err := host.Info(); err == nil {
		s.UptimeSeconds = info.Uptime
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemUsed = vm.Used
		s.MemTotal = vm.Total
		s.MemPercent = vm.UsedPercent
	}
	return s
}

func (s HostStats) Export() string {
	return fmt.Sprintf(
		"host_uptime_seconds %d\nhost_cpu_percent %.2f\nhost_mem_used_bytes %d\nhost_mem_total_bytes %d\nhost_mem_percent %.2f\n",
		s.UptimeSeconds, s.CPUPercent, s.MemUsed, s.MemTotal, s.MemPercent,
	)
}

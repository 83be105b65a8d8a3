package async

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryStats is the host memory picture reported by the health check
type MemoryStats struct {
	UsedGB    float64 `json:"usedGb"`
	TotalGB   float64 `json:"totalGb"`
	UsedPct   float64 `json:"usedPercent"`
	Available bool    `json:"available"`
}

// readMemoryStats queries the OS. Failures yield a zero value with
// Available=false so health never fails on a metrics error.
func readMemoryStats() MemoryStats {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		return MemoryStats{}
	}
	const gb = 1024 * 1024 * 1024
	return MemoryStats{
		UsedGB:    float64(vm.Total-vm.Available) / gb,
		TotalGB:   float64(vm.Total) / gb,
		UsedPct:   vm.UsedPercent,
		Available: true,
	}
}

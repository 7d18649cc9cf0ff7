package model

// Node is one hypervisor host owned by a Server, carrying the capacity
// budget that cluster aggregation sums over.
type Node struct {
	Server           string  `json:"server"`
	Name             string  `json:"name"`
	Online           bool    `json:"online"`
	CPUCores         uint64  `json:"cpu_cores"`
	CPUUsedCores     float64 `json:"cpu_used_cores"`
	MemoryTotalBytes uint64  `json:"memory_total_bytes"`
	MemoryUsedBytes  uint64  `json:"memory_used_bytes"`
	DiskTotalBytes   uint64  `json:"disk_total_bytes"`
	DiskUsedBytes    uint64  `json:"disk_used_bytes"`
	UptimeSeconds    uint64  `json:"uptime_seconds"`
}

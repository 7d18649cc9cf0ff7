package model

import "time"

// ServerInventory is everything collected from one management endpoint
// during a run: its nodes and the guests that live on them.
type ServerInventory struct {
	Host  string `json:"host"`
	Nodes []Node `json:"nodes"`
	VMs   []VM   `json:"vms"`
}

// ServerFailure records a server that contributed nothing to the snapshot
// and why, so the report can surface it next to the aggregated data.
type ServerFailure struct {
	Host   string `json:"host"`
	Reason string `json:"reason"`
}

// ClusterTotals are the additive cluster-wide sums. Capacity comes from
// nodes, allocation from every guest, usage only from running guests whose
// live data is known.
type ClusterTotals struct {
	CapacityCPUCores    uint64 `json:"capacity_cpu_cores"`
	CapacityMemoryBytes uint64 `json:"capacity_memory_bytes"`
	CapacityDiskBytes   uint64 `json:"capacity_disk_bytes"`

	AllocatedCPUCores    uint64 `json:"allocated_cpu_cores"`
	AllocatedMemoryBytes uint64 `json:"allocated_memory_bytes"`
	AllocatedDiskBytes   uint64 `json:"allocated_disk_bytes"`

	UsedCPUCores    float64 `json:"used_cpu_cores"`
	UsedMemoryBytes uint64  `json:"used_memory_bytes"`
	UsedDiskBytes   uint64  `json:"used_disk_bytes"`

	VMsByState map[VMState]int `json:"vms_by_state"`
	VMsByOS    map[string]int  `json:"vms_by_os"`
}

// UsageRatio is actual load against node capacity for one resource.
// Zero capacity yields an undefined ratio, not zero.
func (t ClusterTotals) UsageRatio(r ResourceKind) Ratio {
	switch r {
	case ResourceCPU:
		return divideRatio(t.UsedCPUCores, float64(t.CapacityCPUCores))
	case ResourceMemory:
		return divideRatio(float64(t.UsedMemoryBytes), float64(t.CapacityMemoryBytes))
	case ResourceDisk:
		return divideRatio(float64(t.UsedDiskBytes), float64(t.CapacityDiskBytes))
	}
	return Ratio{}
}

// AllocationRatio is allocation pressure against node capacity for one
// resource. A guest may be allocated far more than it currently uses, so
// this is tracked separately from UsageRatio.
func (t ClusterTotals) AllocationRatio(r ResourceKind) Ratio {
	switch r {
	case ResourceCPU:
		return divideRatio(float64(t.AllocatedCPUCores), float64(t.CapacityCPUCores))
	case ResourceMemory:
		return divideRatio(float64(t.AllocatedMemoryBytes), float64(t.CapacityMemoryBytes))
	case ResourceDisk:
		return divideRatio(float64(t.AllocatedDiskBytes), float64(t.CapacityDiskBytes))
	}
	return Ratio{}
}

func divideRatio(used, capacity float64) Ratio {
	if capacity <= 0 {
		return Ratio{}
	}
	return Ratio{Value: used / capacity, Defined: true}
}

// ClusterSnapshot is the immutable aggregation result of one polling cycle.
// A new cycle produces a new snapshot; nothing mutates an existing one.
type ClusterSnapshot struct {
	RunID       string            `json:"run_id"`
	CollectedAt time.Time         `json:"collected_at"`
	Servers     []ServerInventory `json:"servers"`
	Failures    []ServerFailure   `json:"failures"`
	Totals      ClusterTotals     `json:"totals"`
}

// VMs returns the union of all guests across servers, preserving server and
// per-server ordering.
func (s ClusterSnapshot) VMs() []VM {
	var out []VM
	for _, srv := range s.Servers {
		out = append(out, srv.VMs...)
	}
	return out
}

// Package aggregate merges per-server partial results into one immutable
// ClusterSnapshot. Every polling task owns its own ServerResult buffer; the
// merge here runs single-threaded after the synchronization barrier, so no
// locking is needed anywhere in the pipeline.
package aggregate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"pvescope/internal/model"
)

// ServerResult is the task-owned outcome of polling one server: either a
// full inventory or a terminal error. A failed server is excluded from the
// totals but listed in the snapshot's failures.
type ServerResult struct {
	Host  string
	Nodes []model.Node
	VMs   []model.VM
	Err   error
}

// AggregationError marks structurally impossible input, such as a guest
// referencing a node that is not part of its server's inventory. It voids
// that server's contribution only.
type AggregationError struct {
	Host   string
	Detail string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Host, e.Detail)
}

// Build assembles a snapshot from per-server results in input order.
// Servers that failed, or whose inventory is inconsistent, become failure
// entries; everything else is summed into the cluster totals.
func Build(results []ServerResult, collectedAt time.Time) model.ClusterSnapshot {
	snap := model.ClusterSnapshot{
		RunID:       uuid.NewString(),
		CollectedAt: collectedAt.UTC(),
		Totals: model.ClusterTotals{
			VMsByState: map[model.VMState]int{},
			VMsByOS:    map[string]int{},
		},
	}

	for _, res := range results {
		if res.Err != nil {
			snap.Failures = append(snap.Failures, model.ServerFailure{Host: res.Host, Reason: res.Err.Error()})
			continue
		}
		if err := validate(res); err != nil {
			snap.Failures = append(snap.Failures, model.ServerFailure{Host: res.Host, Reason: err.Error()})
			continue
		}
		snap.Servers = append(snap.Servers, model.ServerInventory{
			Host:  res.Host,
			Nodes: res.Nodes,
			VMs:   res.VMs,
		})
		accumulate(&snap.Totals, res)
	}
	return snap
}

// Merge combines two snapshots into one, as if their servers had been
// aggregated in a single pass. Totals are additive, so merging is
// associative and order-independent.
func Merge(a, b model.ClusterSnapshot) model.ClusterSnapshot {
	out := model.ClusterSnapshot{
		RunID:       a.RunID,
		CollectedAt: a.CollectedAt,
		Servers:     append(append([]model.ServerInventory{}, a.Servers...), b.Servers...),
		Failures:    append(append([]model.ServerFailure{}, a.Failures...), b.Failures...),
		Totals:      addTotals(a.Totals, b.Totals),
	}
	if out.RunID == "" {
		out.RunID = b.RunID
	}
	if out.CollectedAt.IsZero() || (!b.CollectedAt.IsZero() && b.CollectedAt.Before(out.CollectedAt)) {
		out.CollectedAt = b.CollectedAt
	}
	return out
}

func validate(res ServerResult) error {
	nodes := make(map[string]bool, len(res.Nodes))
	for _, n := range res.Nodes {
		nodes[n.Name] = true
	}
	for _, vm := range res.VMs {
		if !nodes[vm.Node] {
			return &AggregationError{
				Host:   res.Host,
				Detail: fmt.Sprintf("vm %d (%s) references unknown node %q", vm.VMID, vm.Name, vm.Node),
			}
		}
	}
	return nil
}

func accumulate(t *model.ClusterTotals, res ServerResult) {
	for _, n := range res.Nodes {
		t.CapacityCPUCores += n.CPUCores
		t.CapacityMemoryBytes += n.MemoryTotalBytes
		t.CapacityDiskBytes += n.DiskTotalBytes
	}
	for _, vm := range res.VMs {
		t.AllocatedCPUCores += vm.Cores * max(vm.Sockets, 1)
		t.AllocatedMemoryBytes += vm.MemoryBytes
		t.AllocatedDiskBytes += vm.AllocatedDiskBytes()

		t.VMsByState[vm.State]++
		if vm.State != model.StateTemplate {
			os := vm.OSType
			if os == "" {
				os = "unknown"
			}
			t.VMsByOS[os]++
		}

		if vm.State != model.StateRunning {
			continue
		}
		// Usage counts only known live data; an unknown reading is not zero.
		if vm.CPUUsedCores != nil {
			t.UsedCPUCores += *vm.CPUUsedCores
		}
		if vm.MemoryUsedBytes != nil {
			t.UsedMemoryBytes += *vm.MemoryUsedBytes
		}
		if vm.DiskUsedBytes != nil {
			t.UsedDiskBytes += *vm.DiskUsedBytes
		}
	}
}

func addTotals(a, b model.ClusterTotals) model.ClusterTotals {
	out := a
	out.CapacityCPUCores += b.CapacityCPUCores
	out.CapacityMemoryBytes += b.CapacityMemoryBytes
	out.CapacityDiskBytes += b.CapacityDiskBytes
	out.AllocatedCPUCores += b.AllocatedCPUCores
	out.AllocatedMemoryBytes += b.AllocatedMemoryBytes
	out.AllocatedDiskBytes += b.AllocatedDiskBytes
	out.UsedCPUCores += b.UsedCPUCores
	out.UsedMemoryBytes += b.UsedMemoryBytes
	out.UsedDiskBytes += b.UsedDiskBytes

	out.VMsByState = map[model.VMState]int{}
	for k, v := range a.VMsByState {
		out.VMsByState[k] = v
	}
	for k, v := range b.VMsByState {
		out.VMsByState[k] += v
	}
	out.VMsByOS = map[string]int{}
	for k, v := range a.VMsByOS {
		out.VMsByOS[k] = v
	}
	for k, v := range b.VMsByOS {
		out.VMsByOS[k] += v
	}
	return out
}

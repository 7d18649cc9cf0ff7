// Package report assembles the UtilizationReport and the export payloads.
// It is pure assembly over an already-built snapshot; all computation lives
// in aggregate and capacity.
package report

import (
	"fmt"

	"pvescope/internal/capacity"
	"pvescope/internal/model"
)

// displayOrder fixes the resource ordering of the report.
var displayOrder = []model.ResourceKind{model.ResourceCPU, model.ResourceMemory, model.ResourceDisk}

// Build derives the read-only utilization view over snap. Server, node and
// VM ordering is preserved from the snapshot. The only failure mode is a
// malformed snapshot, which is propagated rather than masked.
func Build(snap model.ClusterSnapshot, thresholds capacity.Thresholds) (model.UtilizationReport, error) {
	if err := check(snap); err != nil {
		return model.UtilizationReport{}, err
	}

	rep := model.UtilizationReport{Snapshot: snap}
	for _, r := range displayOrder {
		usage := snap.Totals.UsageRatio(r)
		alloc := snap.Totals.AllocationRatio(r)
		rep.Resources = append(rep.Resources, model.ResourceUtilization{
			Resource:       r,
			Usage:          usage,
			UsageTier:      thresholds.Classify(usage),
			Allocation:     alloc,
			AllocationTier: thresholds.Classify(alloc),
		})
	}

	rep.Profile = capacity.ReferenceProfile(snap.VMs())
	rep.Prediction = capacity.Predict(snap.Totals, rep.Profile)
	return rep, nil
}

func check(snap model.ClusterSnapshot) error {
	for _, srv := range snap.Servers {
		nodes := make(map[string]bool, len(srv.Nodes))
		for _, n := range srv.Nodes {
			if n.Server != srv.Host {
				return fmt.Errorf("malformed snapshot: node %q claims server %q inside %q", n.Name, n.Server, srv.Host)
			}
			nodes[n.Name] = true
		}
		for _, vm := range srv.VMs {
			if !nodes[vm.Node] {
				return fmt.Errorf("malformed snapshot: vm %d references unknown node %q on %q", vm.VMID, vm.Node, srv.Host)
			}
		}
	}
	return nil
}

package report

import (
	"sort"
	"time"

	"pvescope/internal/model"
)

// VMExport is the file payload of the guest inventory export. Field names
// are part of the export contract; do not rename them.
type VMExport struct {
	ExportedAt time.Time        `json:"exported_at"`
	TotalVMs   int              `json:"total_vms"`
	VMs        []VMExportRecord `json:"vms"`
}

// VMExportRecord is one guest in the export, flattened for downstream
// consumers.
type VMExportRecord struct {
	Server  string        `json:"server"`
	Node    string        `json:"node"`
	VMID    uint64        `json:"vmid"`
	Name    string        `json:"name"`
	State   model.VMState `json:"state"`
	Cores   uint64        `json:"cores"`
	Sockets uint64        `json:"sockets"`

	MemoryBytes        uint64                   `json:"memory_bytes"`
	Disks              []model.DiskAllocation   `json:"disks"`
	AllocatedDiskBytes uint64                   `json:"allocated_disk_bytes"`
	Nets               []model.NetworkInterface `json:"nets"`

	OSType       string `json:"os_type"`
	BootOrder    string `json:"boot_order"`
	Machine      string `json:"machine"`
	BIOS         string `json:"bios"`
	AgentEnabled bool   `json:"agent_enabled"`
	Tags         string `json:"tags"`

	UptimeSeconds   *uint64  `json:"uptime_seconds"`
	CPUUsedCores    *float64 `json:"cpu_used_cores"`
	MemoryUsedBytes *uint64  `json:"memory_used_bytes"`
}

// ClusterExport wraps the full report for snapshot export.
type ClusterExport struct {
	ExportedAt time.Time               `json:"exported_at"`
	Report     model.UtilizationReport `json:"report"`
}

// ExportVMs flattens the snapshot's guests into the export payload, ordered
// by (server, node, vmid) for stable output.
func ExportVMs(snap model.ClusterSnapshot, exportedAt time.Time) VMExport {
	vms := snap.VMs()
	records := make([]VMExportRecord, 0, len(vms))
	for _, vm := range vms {
		records = append(records, VMExportRecord{
			Server:             vm.Server,
			Node:               vm.Node,
			VMID:               vm.VMID,
			Name:               vm.Name,
			State:              vm.State,
			Cores:              vm.Cores,
			Sockets:            vm.Sockets,
			MemoryBytes:        vm.MemoryBytes,
			Disks:              vm.Disks,
			AllocatedDiskBytes: vm.AllocatedDiskBytes(),
			Nets:               vm.Nets,
			OSType:             vm.OSType,
			BootOrder:          vm.BootOrder,
			Machine:            vm.Machine,
			BIOS:               vm.BIOS,
			AgentEnabled:       vm.AgentEnabled,
			Tags:               vm.Tags,
			UptimeSeconds:      vm.UptimeSeconds,
			CPUUsedCores:       vm.CPUUsedCores,
			MemoryUsedBytes:    vm.MemoryUsedBytes,
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Server != records[j].Server {
			return records[i].Server < records[j].Server
		}
		if records[i].Node != records[j].Node {
			return records[i].Node < records[j].Node
		}
		return records[i].VMID < records[j].VMID
	})
	return VMExport{
		ExportedAt: exportedAt.UTC(),
		TotalVMs:   len(records),
		VMs:        records,
	}
}

// Package normalize converts the gateway's loosely-typed raw records into
// the strict internal model. All unit conversion happens here: memory and
// disk become bytes, CPU becomes cores. Capacity fields default to zero when
// unparsable; live usage fields stay nil rather than pretending to be zero.
// A malformed disk or NIC sub-entry is logged and skipped without failing
// the enclosing record, and identical raw input always produces identical
// output.
package normalize

import (
	"log/slog"
	"sort"
	"strings"

	"pvescope/internal/model"
	"pvescope/internal/proxmox"
)

// localStorageTypes are the pool types that represent node-local disk
// capacity; network and special-purpose pools are excluded from the budget.
var localStorageTypes = map[string]bool{
	"dir":     true,
	"lvm":     true,
	"lvmthin": true,
	"zfspool": true,
}

// LocalStorage reports whether a storage pool counts toward node disk
// capacity.
func LocalStorage(s proxmox.RawStorage) bool {
	return localStorageTypes[s.Type]
}

// Node merges the node list entry with its status detail. The disk totals
// are supplied by the caller, summed over local storage pools.
func Node(server string, raw proxmox.RawNode, status proxmox.RawNodeStatus, diskTotal, diskUsed uint64) model.Node {
	cores, _ := status.CPUInfo.CPUs.Uint64()
	if cores == 0 {
		cores, _ = raw.MaxCPU.Uint64()
	}
	memTotal, _ := status.Memory.Total.Uint64()
	if memTotal == 0 {
		memTotal, _ = raw.MaxMem.Uint64()
	}
	memUsed, _ := status.Memory.Used.Uint64()
	uptime, _ := status.Uptime.Uint64()
	if uptime == 0 {
		uptime, _ = raw.Uptime.Uint64()
	}

	return model.Node{
		Server:           server,
		Name:             raw.Node,
		Online:           raw.Status == "online",
		CPUCores:         cores,
		CPUUsedCores:     status.CPU.Or(0) * float64(cores),
		MemoryTotalBytes: memTotal,
		MemoryUsedBytes:  memUsed,
		DiskTotalBytes:   diskTotal,
		DiskUsedBytes:    diskUsed,
		UptimeSeconds:    uptime,
	}
}

// VM builds a normalized guest from the list entry, its config, and (for
// running guests) the live status query result. Pass status nil when the
// query failed or was skipped; all live fields then stay unknown.
func VM(logger *slog.Logger, server, node string, raw proxmox.RawVM, cfg proxmox.RawVMConfig, status *proxmox.RawVMStatus) model.VM {
	vmid, _ := raw.VMID.Uint64()

	vm := model.VM{
		Server:  server,
		Node:    node,
		VMID:    vmid,
		Name:    raw.Name,
		Cores:   cfgUint(cfg, "cores", 1),
		Sockets: cfgUint(cfg, "sockets", 1),
		// memory config value is MiB
		MemoryBytes:  cfgUint(cfg, "memory", 0) * (1 << 20),
		OSType:       cfgString(cfg, "ostype"),
		BootOrder:    cfgString(cfg, "boot"),
		Machine:      cfgString(cfg, "machine"),
		BIOS:         cfgString(cfg, "bios"),
		AgentEnabled: agentEnabled(cfgString(cfg, "agent")),
		Description:  cfgString(cfg, "description"),
		Tags:         cfgString(cfg, "tags"),
	}

	template := false
	if v, ok := raw.Template.Float64(); ok && v == 1 {
		template = true
	}
	if v, ok := cfg["template"]; ok {
		if f, ok := numeric(v); ok && f == 1 {
			template = true
		}
	}
	vm.State = lifecycleState(raw.Status, template)

	vm.Disks, vm.Nets = parseDevices(logger, server, node, vmid, cfg)

	if vm.State == model.StateRunning && status != nil {
		if frac, ok := status.CPU.Float64(); ok {
			cores := status.CPUs.Or(float64(vm.Cores))
			used := frac * cores
			vm.CPUUsedCores = &used
		}
		if mem, ok := status.Mem.Uint64(); ok {
			vm.MemoryUsedBytes = &mem
		}
		if disk, ok := status.Disk.Uint64(); ok && disk > 0 {
			vm.DiskUsedBytes = &disk
		}
		if up, ok := status.Uptime.Uint64(); ok {
			vm.UptimeSeconds = &up
		}
	}
	return vm
}

// lifecycleState maps a raw status string to the model state. The template
// flag wins over whatever the status says.
func lifecycleState(status string, template bool) model.VMState {
	if template {
		return model.StateTemplate
	}
	if strings.EqualFold(status, string(model.StateRunning)) {
		return model.StateRunning
	}
	return model.StateStopped
}

// parseDevices walks the config in sorted key order so output is
// deterministic regardless of map iteration.
func parseDevices(logger *slog.Logger, server, node string, vmid uint64, cfg proxmox.RawVMConfig) ([]model.DiskAllocation, []model.NetworkInterface) {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var disks []model.DiskAllocation
	var nets []model.NetworkInterface
	for _, key := range keys {
		value := stringValue(cfg[key])
		switch {
		case isDiskKey(key):
			alloc, ok := parseDiskSpec(key, value)
			if !ok {
				logger.Debug("skipping non-disk slot", "server", server, "node", node, "vmid", vmid, "key", key)
				continue
			}
			disks = append(disks, alloc)
		case isNetKey(key):
			nic, ok := parseNetSpec(key, value)
			if !ok {
				logger.Warn("skipping malformed net entry", "server", server, "node", node, "vmid", vmid, "key", key)
				continue
			}
			nets = append(nets, nic)
		}
	}
	return disks, nets
}

func cfgUint(cfg proxmox.RawVMConfig, key string, def uint64) uint64 {
	v, ok := cfg[key]
	if !ok {
		return def
	}
	f, ok := numeric(v)
	if !ok || f < 0 {
		return def
	}
	return uint64(f)
}

func cfgString(cfg proxmox.RawVMConfig, key string) string {
	v, ok := cfg[key]
	if !ok {
		return ""
	}
	return stringValue(v)
}

func agentEnabled(spec string) bool {
	first, _, _ := strings.Cut(spec, ",")
	if strings.TrimSpace(first) == "1" {
		return true
	}
	return strings.Contains(spec, "enabled=1")
}

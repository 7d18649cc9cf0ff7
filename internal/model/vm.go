package model

// VMState is the normalized lifecycle state of a guest. The template flag in
// the raw config overrides whatever status string the API reported.
type VMState string

const (
	StateRunning  VMState = "running"
	StateStopped  VMState = "stopped"
	StateTemplate VMState = "template"
)

// DiskAllocation is one parsed disk entry from a guest config
// (e.g. "scsi0: local-lvm:vm-101-disk-0,size=32G").
type DiskAllocation struct {
	Interface string `json:"interface"`
	Storage   string `json:"storage"`
	SizeBytes uint64 `json:"size_bytes"`
}

// NetworkInterface is one parsed NIC entry from a guest config
// (e.g. "net0: virtio=DE:AD:BE:EF:00:01,bridge=vmbr0").
type NetworkInterface struct {
	Name   string `json:"name"`
	Model  string `json:"model"`
	Bridge string `json:"bridge"`
	MAC    string `json:"mac"`
}

// VM is a normalized guest record. Allocation fields are always populated
// (zero when the raw value was absent or unparsable); live usage fields are
// nil pointers when unknown, never zero-by-accident.
type VM struct {
	Server  string  `json:"server"`
	Node    string  `json:"node"`
	VMID    uint64  `json:"vmid"`
	Name    string  `json:"name"`
	State   VMState `json:"state"`
	Cores   uint64  `json:"cores"`
	Sockets uint64  `json:"sockets"`

	MemoryBytes uint64             `json:"memory_bytes"`
	Disks       []DiskAllocation   `json:"disks"`
	Nets        []NetworkInterface `json:"nets"`

	OSType       string `json:"os_type"`
	BootOrder    string `json:"boot_order"`
	Machine      string `json:"machine"`
	BIOS         string `json:"bios"`
	AgentEnabled bool   `json:"agent_enabled"`
	Description  string `json:"description"`
	Tags         string `json:"tags"`

	// Live data, defined only while running and when the status query
	// succeeded.
	UptimeSeconds   *uint64  `json:"uptime_seconds,omitempty"`
	CPUUsedCores    *float64 `json:"cpu_used_cores,omitempty"`
	MemoryUsedBytes *uint64  `json:"memory_used_bytes,omitempty"`
	DiskUsedBytes   *uint64  `json:"disk_used_bytes,omitempty"`
}

// AllocatedDiskBytes sums the VM's disk allocations.
func (v VM) AllocatedDiskBytes() uint64 {
	var total uint64
	for _, d := range v.Disks {
		total += d.SizeBytes
	}
	return total
}

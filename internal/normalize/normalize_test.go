package normalize

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvescope/internal/model"
	"pvescope/internal/proxmox"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func num(v float64) proxmox.Num {
	return proxmox.Num{Value: v, Valid: true}
}

func TestParseSizeBytes(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"32G", 32 << 30, true},
		{"512M", 512 << 20, true},
		{"1T", 1 << 40, true},
		{"102400K", 102400 << 10, true},
		{"1.5G", 1610612736, true},
		{"4096", 4096, true},
		{"8g", 8 << 30, true},
		{" 16G ", 16 << 30, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-5G", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseSizeBytes(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestDiskAndNetKeyDetection(t *testing.T) {
	assert.True(t, isDiskKey("scsi0"))
	assert.True(t, isDiskKey("virtio11"))
	assert.True(t, isDiskKey("ide2"))
	assert.True(t, isDiskKey("sata3"))
	assert.False(t, isDiskKey("scsihw"), "controller key is not a disk slot")
	assert.False(t, isDiskKey("scsi"))
	assert.False(t, isDiskKey("efidisk0"))

	assert.True(t, isNetKey("net0"))
	assert.True(t, isNetKey("net12"))
	assert.False(t, isNetKey("net"))
	assert.False(t, isNetKey("netx"))
}

func TestParseDiskSpec(t *testing.T) {
	alloc, ok := parseDiskSpec("scsi0", "local-lvm:vm-101-disk-0,size=32G,ssd=1")
	require.True(t, ok)
	assert.Equal(t, model.DiskAllocation{Interface: "scsi0", Storage: "local-lvm", SizeBytes: 32 << 30}, alloc)

	// cdrom slots are not disk allocations
	_, ok = parseDiskSpec("ide2", "local:iso/debian-12.iso,media=cdrom")
	assert.False(t, ok)
	_, ok = parseDiskSpec("ide2", "none,media=cdrom")
	assert.False(t, ok)

	// unparsable size keeps the entry with size zero
	alloc, ok = parseDiskSpec("virtio0", "ceph-pool:vm-200-disk-1,size=banana")
	require.True(t, ok)
	assert.Equal(t, uint64(0), alloc.SizeBytes)
	assert.Equal(t, "ceph-pool", alloc.Storage)

	// no size clause at all
	alloc, ok = parseDiskSpec("sata1", "local:vm-300-disk-0")
	require.True(t, ok)
	assert.Equal(t, uint64(0), alloc.SizeBytes)
}

func TestParseNetSpec(t *testing.T) {
	nic, ok := parseNetSpec("net0", "virtio=DE:AD:BE:EF:00:01,bridge=vmbr0,firewall=1")
	require.True(t, ok)
	assert.Equal(t, model.NetworkInterface{Name: "net0", Model: "virtio", Bridge: "vmbr0", MAC: "DE:AD:BE:EF:00:01"}, nic)

	nic, ok = parseNetSpec("net1", "e1000=AA:BB:CC:DD:EE:FF")
	require.True(t, ok)
	assert.Equal(t, "e1000", nic.Model)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", nic.MAC)
	assert.Empty(t, nic.Bridge)

	_, ok = parseNetSpec("net2", "")
	assert.False(t, ok)
}

func TestLifecycleState(t *testing.T) {
	assert.Equal(t, model.StateRunning, lifecycleState("running", false))
	assert.Equal(t, model.StateStopped, lifecycleState("stopped", false))
	assert.Equal(t, model.StateStopped, lifecycleState("paused", false), "unrecognized status maps to stopped")
	assert.Equal(t, model.StateTemplate, lifecycleState("running", true), "template flag wins over status")
}

func TestVMNormalization(t *testing.T) {
	raw := proxmox.RawVM{VMID: num(101), Name: "web-01", Status: "running"}
	cfg := proxmox.RawVMConfig{
		"cores":   float64(4),
		"sockets": float64(2),
		"memory":  "8192",
		"ostype":  "l26",
		"agent":   "1,fstrim_cloned_disks=1",
		"scsi0":   "local-lvm:vm-101-disk-0,size=32G",
		"scsi1":   "local-lvm:vm-101-disk-1,size=100G",
		"ide2":    "local:iso/debian.iso,media=cdrom",
		"net0":    "virtio=DE:AD:BE:EF:00:01,bridge=vmbr0",
	}
	status := &proxmox.RawVMStatus{
		Status: "running",
		CPU:    num(0.5),
		CPUs:   num(8),
		Mem:    num(4 << 30),
		Uptime: num(3600),
	}

	vm := VM(testLogger(), "pve1.example.com", "pve1", raw, cfg, status)

	assert.Equal(t, uint64(101), vm.VMID)
	assert.Equal(t, model.StateRunning, vm.State)
	assert.Equal(t, uint64(4), vm.Cores)
	assert.Equal(t, uint64(2), vm.Sockets)
	assert.Equal(t, uint64(8192)<<20, vm.MemoryBytes, "memory config is MiB")
	assert.True(t, vm.AgentEnabled)

	require.Len(t, vm.Disks, 2, "cdrom slot must be skipped")
	assert.Equal(t, uint64(132)<<30, vm.AllocatedDiskBytes())
	require.Len(t, vm.Nets, 1)

	require.NotNil(t, vm.CPUUsedCores)
	assert.InDelta(t, 4.0, *vm.CPUUsedCores, 1e-9, "cpu fraction times vcpus")
	require.NotNil(t, vm.MemoryUsedBytes)
	assert.Equal(t, uint64(4)<<30, *vm.MemoryUsedBytes)
	require.NotNil(t, vm.UptimeSeconds)
	assert.Equal(t, uint64(3600), *vm.UptimeSeconds)
}

func TestVMDefaultsWhenConfigSparse(t *testing.T) {
	raw := proxmox.RawVM{VMID: num(200), Name: "bare", Status: "stopped"}
	vm := VM(testLogger(), "pve1.example.com", "pve1", raw, proxmox.RawVMConfig{}, nil)

	assert.Equal(t, model.StateStopped, vm.State)
	assert.Equal(t, uint64(1), vm.Cores, "cores defaults to 1")
	assert.Equal(t, uint64(1), vm.Sockets, "sockets defaults to 1")
	assert.Equal(t, uint64(0), vm.MemoryBytes)
	assert.Empty(t, vm.Disks)
	assert.Nil(t, vm.CPUUsedCores)
	assert.Nil(t, vm.MemoryUsedBytes)
	assert.Nil(t, vm.UptimeSeconds)
}

func TestVMStoppedIgnoresLiveStatus(t *testing.T) {
	raw := proxmox.RawVM{VMID: num(300), Name: "halted", Status: "stopped"}
	status := &proxmox.RawVMStatus{Status: "stopped", CPU: num(0), Mem: num(0)}
	vm := VM(testLogger(), "pve1.example.com", "pve1", raw, proxmox.RawVMConfig{}, status)

	assert.Nil(t, vm.CPUUsedCores)
	assert.Nil(t, vm.MemoryUsedBytes)
}

func TestVMTemplateFlagFromConfig(t *testing.T) {
	raw := proxmox.RawVM{VMID: num(900), Name: "tmpl", Status: "stopped"}
	cfg := proxmox.RawVMConfig{"template": float64(1)}
	vm := VM(testLogger(), "pve1.example.com", "pve1", raw, cfg, nil)
	assert.Equal(t, model.StateTemplate, vm.State)
}

func TestVMDeterministicDeviceOrder(t *testing.T) {
	raw := proxmox.RawVM{VMID: num(101), Name: "multi", Status: "stopped"}
	cfg := proxmox.RawVMConfig{
		"scsi1": "a:x,size=1G",
		"scsi0": "b:y,size=2G",
		"net1":  "virtio=00:00:00:00:00:02",
		"net0":  "virtio=00:00:00:00:00:01",
	}
	for i := 0; i < 10; i++ {
		vm := VM(testLogger(), "s", "n", raw, cfg, nil)
		require.Len(t, vm.Disks, 2)
		assert.Equal(t, "scsi0", vm.Disks[0].Interface)
		assert.Equal(t, "scsi1", vm.Disks[1].Interface)
		require.Len(t, vm.Nets, 2)
		assert.Equal(t, "net0", vm.Nets[0].Name)
	}
}

func TestNodeNormalization(t *testing.T) {
	raw := proxmox.RawNode{Node: "pve1", Status: "online", MaxCPU: num(32), MaxMem: num(64 << 30)}
	var status proxmox.RawNodeStatus
	status.CPU = num(0.25)
	status.CPUInfo.CPUs = num(32)
	status.Memory.Total = num(64 << 30)
	status.Memory.Used = num(16 << 30)
	status.Uptime = num(86400)

	n := Node("pve1.example.com", raw, status, 2<<40, 1<<40)

	assert.Equal(t, "pve1.example.com", n.Server)
	assert.True(t, n.Online)
	assert.Equal(t, uint64(32), n.CPUCores)
	assert.InDelta(t, 8.0, n.CPUUsedCores, 1e-9)
	assert.Equal(t, uint64(64)<<30, n.MemoryTotalBytes)
	assert.Equal(t, uint64(2)<<40, n.DiskTotalBytes)
	assert.Equal(t, uint64(86400), n.UptimeSeconds)
}

func TestNodeFallsBackToListEntry(t *testing.T) {
	raw := proxmox.RawNode{Node: "pve2", Status: "online", MaxCPU: num(16), MaxMem: num(32 << 30), Uptime: num(100)}
	n := Node("pve2.example.com", raw, proxmox.RawNodeStatus{}, 0, 0)
	assert.Equal(t, uint64(16), n.CPUCores)
	assert.Equal(t, uint64(32)<<30, n.MemoryTotalBytes)
	assert.Equal(t, uint64(100), n.UptimeSeconds)
}

func TestLocalStorage(t *testing.T) {
	assert.True(t, LocalStorage(proxmox.RawStorage{Type: "dir"}))
	assert.True(t, LocalStorage(proxmox.RawStorage{Type: "lvmthin"}))
	assert.True(t, LocalStorage(proxmox.RawStorage{Type: "zfspool"}))
	assert.False(t, LocalStorage(proxmox.RawStorage{Type: "nfs"}))
	assert.False(t, LocalStorage(proxmox.RawStorage{Type: "cephfs"}))
}

func TestNumericCoercion(t *testing.T) {
	f, ok := numeric("4")
	require.True(t, ok)
	assert.Equal(t, 4.0, f)

	f, ok = numeric(float64(2))
	require.True(t, ok)
	assert.Equal(t, 2.0, f)

	_, ok = numeric("four")
	assert.False(t, ok)

	f, ok = numeric(true)
	require.True(t, ok)
	assert.Equal(t, 1.0, f)
}

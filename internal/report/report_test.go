package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvescope/internal/aggregate"
	"pvescope/internal/capacity"
	"pvescope/internal/model"
)

func testSnapshot(t *testing.T) model.ClusterSnapshot {
	t.Helper()
	used := 2.0
	mem := uint64(4) << 30
	snap := aggregate.Build([]aggregate.ServerResult{
		{
			Host: "pve1.example.com",
			Nodes: []model.Node{{
				Server: "pve1.example.com", Name: "pve1", Online: true,
				CPUCores: 32, MemoryTotalBytes: 64 << 30, DiskTotalBytes: 1 << 40,
			}},
			VMs: []model.VM{{
				Server: "pve1.example.com", Node: "pve1", VMID: 101, Name: "web-01",
				State: model.StateRunning, Cores: 4, Sockets: 1, MemoryBytes: 8 << 30,
				Disks:           []model.DiskAllocation{{Interface: "scsi0", Storage: "local-lvm", SizeBytes: 32 << 30}},
				OSType:          "l26",
				CPUUsedCores:    &used,
				MemoryUsedBytes: &mem,
			}},
		},
		{Host: "pve2.example.com", Err: assertErr{}},
	}, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	return snap
}

type assertErr struct{}

func (assertErr) Error() string { return "dial tcp: connection refused" }

func TestBuildReportResourceOrder(t *testing.T) {
	rep, err := Build(testSnapshot(t), capacity.DefaultThresholds)
	require.NoError(t, err)

	require.Len(t, rep.Resources, 3)
	assert.Equal(t, model.ResourceCPU, rep.Resources[0].Resource)
	assert.Equal(t, model.ResourceMemory, rep.Resources[1].Resource)
	assert.Equal(t, model.ResourceDisk, rep.Resources[2].Resource)
}

func TestBuildReportExposesUsageAndAllocationIndependently(t *testing.T) {
	rep, err := Build(testSnapshot(t), capacity.DefaultThresholds)
	require.NoError(t, err)

	cpu := rep.Resources[0]
	require.True(t, cpu.Usage.Defined)
	require.True(t, cpu.Allocation.Defined)
	assert.InDelta(t, 2.0/32.0, cpu.Usage.Value, 1e-9)
	assert.InDelta(t, 4.0/32.0, cpu.Allocation.Value, 1e-9)
	assert.Equal(t, model.TierOK, cpu.UsageTier)
	assert.Equal(t, model.TierOK, cpu.AllocationTier)
}

func TestBuildReportPredictionUsesReferenceProfile(t *testing.T) {
	rep, err := Build(testSnapshot(t), capacity.DefaultThresholds)
	require.NoError(t, err)

	// single guest: 4 cores, 8 GiB, 32 GiB becomes the reference profile
	assert.InDelta(t, 4.0, rep.Profile.CPUCores, 1e-9)
	assert.InDelta(t, float64(8<<30), rep.Profile.MemoryBytes, 1e-9)

	// remaining per resource: 28 cores -> 7, 56 GiB -> 7, 992 GiB -> 31
	assert.Equal(t, 7, rep.Prediction.AdditionalVMs)
	assert.Equal(t, model.ResourceMemory, rep.Prediction.LimitingResource,
		"cpu and memory tie at 7; memory outranks cpu")
}

func TestBuildReportRejectsMalformedSnapshot(t *testing.T) {
	snap := testSnapshot(t)
	snap.Servers[0].VMs[0].Node = "ghost"
	_, err := Build(snap, capacity.DefaultThresholds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")
}

func TestExportVMsShapeAndOrder(t *testing.T) {
	snap := testSnapshot(t)
	extra := snap.Servers[0].VMs[0]
	extra.VMID = 90
	extra.Name = "alpha"
	snap.Servers[0].VMs = append(snap.Servers[0].VMs, extra)

	at := time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC)
	exp := ExportVMs(snap, at)

	assert.Equal(t, at, exp.ExportedAt)
	assert.Equal(t, 2, exp.TotalVMs)
	require.Len(t, exp.VMs, 2)
	assert.Equal(t, uint64(90), exp.VMs[0].VMID, "records ordered by vmid within a node")
	assert.Equal(t, uint64(32)<<30, exp.VMs[0].AllocatedDiskBytes)

	data, err := json.Marshal(exp)
	require.NoError(t, err)
	for _, key := range []string{`"exported_at"`, `"total_vms"`, `"vms"`, `"memory_bytes"`, `"cpu_used_cores"`} {
		assert.Contains(t, string(data), key)
	}
}

func TestRatioMarshalsUndefinedAsNull(t *testing.T) {
	data, err := json.Marshal(model.Ratio{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	data, err = json.Marshal(model.Ratio{Value: 0.5, Defined: true})
	require.NoError(t, err)
	assert.Equal(t, "0.5", string(data))
}

package capacity

import (
	"math"

	"pvescope/internal/model"
)

// DefaultProfile sizes predictions when the cluster has no non-template
// guests to average over: 2 cores, 4 GiB RAM, 32 GiB disk.
var DefaultProfile = model.ResourceProfile{
	CPUCores:    2,
	MemoryBytes: 4 << 30,
	DiskBytes:   32 << 30,
}

// tiePriority breaks limiting-resource ties: disk first, then memory, then
// CPU.
var tiePriority = []model.ResourceKind{model.ResourceDisk, model.ResourceMemory, model.ResourceCPU}

// ReferenceProfile averages the allocated footprint of all non-template
// guests. With zero such guests it falls back to DefaultProfile so the
// prediction never divides by zero.
func ReferenceProfile(vms []model.VM) model.ResourceProfile {
	var count float64
	var profile model.ResourceProfile
	for _, vm := range vms {
		if vm.State == model.StateTemplate {
			continue
		}
		count++
		profile.CPUCores += float64(vm.Cores * max(vm.Sockets, 1))
		profile.MemoryBytes += float64(vm.MemoryBytes)
		profile.DiskBytes += float64(vm.AllocatedDiskBytes())
	}
	if count == 0 {
		return DefaultProfile
	}
	profile.CPUCores /= count
	profile.MemoryBytes /= count
	profile.DiskBytes /= count
	return profile
}

// Predict computes how many additional reference-profile guests fit in the
// remaining (capacity minus allocated) budget of every resource at once.
// The limiting resource is the one allowing the fewest, ties resolved by
// the fixed priority order.
func Predict(totals model.ClusterTotals, profile model.ResourceProfile) model.CapacityPrediction {
	possible := map[model.ResourceKind]int{
		model.ResourceDisk:   fit(remaining(totals.CapacityDiskBytes, totals.AllocatedDiskBytes), profile.DiskBytes),
		model.ResourceMemory: fit(remaining(totals.CapacityMemoryBytes, totals.AllocatedMemoryBytes), profile.MemoryBytes),
		model.ResourceCPU:    fit(remaining(totals.CapacityCPUCores, totals.AllocatedCPUCores), profile.CPUCores),
	}

	pred := model.CapacityPrediction{
		AdditionalVMs:    possible[tiePriority[0]],
		LimitingResource: tiePriority[0],
	}
	for _, r := range tiePriority[1:] {
		if possible[r] < pred.AdditionalVMs {
			pred.AdditionalVMs = possible[r]
			pred.LimitingResource = r
		}
	}
	if pred.AdditionalVMs == math.MaxInt {
		// Degenerate all-zero profile; report no headroom rather than infinity.
		pred.AdditionalVMs = 0
	}
	return pred
}

func remaining(capacity, allocated uint64) float64 {
	if allocated >= capacity {
		return 0
	}
	return float64(capacity - allocated)
}

// fit floors remaining/profile, clamped to >= 0. A zero-size profile
// resource never limits growth.
func fit(remaining, per float64) int {
	if per <= 0 {
		return math.MaxInt
	}
	n := int(math.Floor(remaining / per))
	if n < 0 {
		return 0
	}
	return n
}

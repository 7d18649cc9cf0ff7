package model

import "encoding/json"

// ResourceKind identifies one of the three budgeted resources.
type ResourceKind string

const (
	ResourceCPU    ResourceKind = "cpu"
	ResourceMemory ResourceKind = "memory"
	ResourceDisk   ResourceKind = "disk"
)

// Ratio is a utilization fraction that may be undefined (zero capacity).
// Undefined is distinct from zero and renders as "unknown" downstream.
type Ratio struct {
	Value   float64
	Defined bool
}

// MarshalJSON emits null for undefined ratios so exports never conflate
// "unknown" with 0.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Ratio{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Ratio{Value: v, Defined: true}
	return nil
}

// Tier is the severity classification of a utilization ratio.
type Tier string

const (
	TierOK       Tier = "ok"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
	TierUnknown  Tier = "unknown"
)

// ResourceProfile is a resource footprint used to size capacity
// predictions, typically the average of currently allocated resources.
type ResourceProfile struct {
	CPUCores    float64 `json:"cpu_cores"`
	MemoryBytes float64 `json:"memory_bytes"`
	DiskBytes   float64 `json:"disk_bytes"`
}

// CapacityPrediction says how many additional reference-profile guests the
// remaining capacity could hold, and which resource runs out first.
type CapacityPrediction struct {
	AdditionalVMs    int          `json:"additional_vms"`
	LimitingResource ResourceKind `json:"limiting_resource"`
}

// ResourceUtilization couples the two distinct views of one resource:
// actual load and allocation pressure, each with its own severity tier.
type ResourceUtilization struct {
	Resource       ResourceKind `json:"resource"`
	Usage          Ratio        `json:"usage"`
	UsageTier      Tier         `json:"usage_tier"`
	Allocation     Ratio        `json:"allocation"`
	AllocationTier Tier         `json:"allocation_tier"`
}

// UtilizationReport is the derived, read-only view over a snapshot that the
// rendering and export layers consume.
type UtilizationReport struct {
	Snapshot   ClusterSnapshot       `json:"snapshot"`
	Resources  []ResourceUtilization `json:"resources"`
	Profile    ResourceProfile       `json:"reference_profile"`
	Prediction CapacityPrediction    `json:"prediction"`
}

package proxmox

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Num is a numeric API field that may arrive as a JSON number, a quoted
// string, or null. Decoding never fails; unparsable input is just invalid.
// Deciding between a zero default and an "unknown" sentinel is the
// normalizer's job, so Num keeps validity separate from value.
type Num struct {
	Value float64
	Valid bool
}

func (n *Num) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*n = Num{}
		return nil
	}
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*n = Num{}
		return nil
	}
	*n = Num{Value: v, Valid: true}
	return nil
}

func (n Num) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Float64 reports the value and whether it was parsable.
func (n Num) Float64() (float64, bool) { return n.Value, n.Valid }

// Or returns the value, or def when invalid.
func (n Num) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

// Uint64 clamps negatives to zero; ok mirrors Valid.
func (n Num) Uint64() (uint64, bool) {
	if !n.Valid || n.Value < 0 {
		return 0, n.Valid && n.Value >= 0
	}
	return uint64(n.Value), true
}

// RawNode is one entry of GET /nodes.
type RawNode struct {
	Node   string `json:"node"`
	Status string `json:"status"`
	MaxCPU Num    `json:"maxcpu"`
	MaxMem Num    `json:"maxmem"`
	Uptime Num    `json:"uptime"`
}

// RawNodeStatus is GET /nodes/{node}/status.
type RawNodeStatus struct {
	CPU     Num `json:"cpu"`
	CPUInfo struct {
		CPUs Num `json:"cpus"`
	} `json:"cpuinfo"`
	Memory struct {
		Total Num `json:"total"`
		Used  Num `json:"used"`
	} `json:"memory"`
	Uptime Num `json:"uptime"`
}

// RawVM is one entry of GET /nodes/{node}/qemu.
type RawVM struct {
	VMID     Num    `json:"vmid"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Template Num    `json:"template"`
}

// RawVMConfig is GET /nodes/{node}/qemu/{vmid}/config: a flat key/value map
// with positional keys (scsi0, net1, ...) that only the normalizer's parsers
// understand.
type RawVMConfig map[string]any

// RawVMStatus is GET /nodes/{node}/qemu/{vmid}/status/current.
type RawVMStatus struct {
	Status string `json:"status"`
	CPU    Num    `json:"cpu"`
	CPUs   Num    `json:"cpus"`
	Mem    Num    `json:"mem"`
	MaxMem Num    `json:"maxmem"`
	Disk   Num    `json:"disk"`
	Uptime Num    `json:"uptime"`
}

// RawStorage is one entry of GET /nodes/{node}/storage.
type RawStorage struct {
	Storage string `json:"storage"`
	Type    string `json:"type"`
}

// RawStorageStatus is GET /nodes/{node}/storage/{storage}/status.
type RawStorageStatus struct {
	Total Num `json:"total"`
	Used  Num `json:"used"`
	Avail Num `json:"avail"`
}

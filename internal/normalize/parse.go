package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"pvescope/internal/model"
)

const (
	kib = uint64(1) << 10
	mib = uint64(1) << 20
	gib = uint64(1) << 30
	tib = uint64(1) << 40
)

var diskPrefixes = []string{"scsi", "virtio", "ide", "sata"}

// netModels are the NIC model tokens that appear as `model=MAC` in a guest
// net spec.
var netModels = map[string]bool{
	"virtio":  true,
	"e1000":   true,
	"e1000e":  true,
	"rtl8139": true,
	"vmxnet3": true,
}

// isDiskKey reports whether a config key names a disk slot (scsi0, ide2,
// virtio11, ...).
func isDiskKey(key string) bool {
	for _, prefix := range diskPrefixes {
		if rest, ok := strings.CutPrefix(key, prefix); ok && isDigits(rest) {
			return true
		}
	}
	return false
}

// isNetKey reports whether a config key names a NIC slot (net0, net1, ...).
func isNetKey(key string) bool {
	rest, ok := strings.CutPrefix(key, "net")
	return ok && isDigits(rest)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseSizeBytes converts a size literal with an optional binary suffix
// ("32G", "512M", "1.5T", "102400K") to bytes. A bare number is bytes.
func parseSizeBytes(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	mult := uint64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		mult, s = kib, s[:len(s)-1]
	case 'M', 'm':
		mult, s = mib, s[:len(s)-1]
	case 'G', 'g':
		mult, s = gib, s[:len(s)-1]
	case 'T', 't':
		mult, s = tib, s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return uint64(v * float64(mult)), true
}

// parseDiskSpec parses one disk slot value, e.g.
// "local-lvm:vm-101-disk-0,size=32G,ssd=1". CD-ROM slots are not disk
// allocations and report ok=false, as does an empty spec. An entry without a
// parsable size keeps the allocation with size zero.
func parseDiskSpec(iface, spec string) (model.DiskAllocation, bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "none" {
		return model.DiskAllocation{}, false
	}
	parts := strings.Split(spec, ",")

	alloc := model.DiskAllocation{Interface: iface}
	if storage, _, ok := strings.Cut(parts[0], ":"); ok {
		alloc.Storage = storage
	} else {
		alloc.Storage = parts[0]
	}

	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "media":
			if strings.TrimSpace(value) == "cdrom" {
				return model.DiskAllocation{}, false
			}
		case "size":
			if bytes, ok := parseSizeBytes(value); ok {
				alloc.SizeBytes = bytes
			}
		}
	}
	return alloc, true
}

// parseNetSpec parses one NIC slot value, e.g.
// "virtio=DE:AD:BE:EF:00:01,bridge=vmbr0,firewall=1".
func parseNetSpec(name, spec string) (model.NetworkInterface, bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return model.NetworkInterface{}, false
	}

	nic := model.NetworkInterface{Name: name}
	for _, part := range strings.Split(spec, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			if nic.Model == "" {
				nic.Model = strings.TrimSpace(part)
			}
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch {
		case netModels[key]:
			nic.Model = key
			nic.MAC = value
		case key == "bridge":
			nic.Bridge = value
		case key == "macaddr":
			nic.MAC = value
		}
	}
	return nic, true
}

// numeric coerces a raw config value (JSON number, quoted number, bool) to
// float64.
func numeric(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

package gpu

import (
	"strings"

	"github.com/skobkin/benchmarco/internal/telemetry"
)

// ParseIdentity scans the report's "Key : Value" lines for the fields that
// name the device. The first occurrence of each key wins. Missing keys leave
// the field empty; a generic product name is resolved from the PCI database.
func ParseIdentity(lines []string) telemetry.Identity {
	var (
		id          telemetry.Identity
		subsystemID string
	)

	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		var dst *string
		switch key {
		case "Product Name":
			dst = &id.ProductName
		case "Driver Version":
			dst = &id.DriverVersion
		case "Bus Id":
			dst = &id.BusID
		case "Device Id":
			dst = &id.PCIDeviceID
		case "GPU UUID":
			dst = &id.UUID
		case "Sub System Id":
			dst = &subsystemID
		default:
			continue
		}
		if *dst == "" {
			*dst = value
		}
	}

	if isGenericProductName(id.ProductName) {
		if resolved := lookupProductName(id.PCIDeviceID, subsystemID); resolved != "" {
			id.ProductName = resolved
		}
	}

	return id
}

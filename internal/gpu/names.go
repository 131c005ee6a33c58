package gpu

import (
	"strings"
	"sync"

	"github.com/jaypipes/pcidb"
)

var (
	pciOnce sync.Once
	pciDB   *pcidb.PCIDB
	pciErr  error
)

// lookupProductName resolves a marketing name from the PCI database,
// preferring the board partner's subsystem entry when one matches.
func lookupProductName(deviceID, subsystemID string) string {
	vendor, device := splitPCIDeviceID(deviceID)
	if vendor == "" || device == "" {
		return ""
	}

	db := loadPCIDatabase()
	if db == nil {
		return ""
	}

	product, ok := db.Products[vendor+device]
	if !ok || product == nil {
		return ""
	}

	subVendor, subDevice := splitPCIDeviceID(subsystemID)
	if subVendor != "" && subDevice != "" {
		for _, subsystem := range product.Subsystems {
			if subsystem == nil {
				continue
			}
			if strings.EqualFold(subsystem.VendorID, subVendor) && strings.EqualFold(subsystem.ID, subDevice) && subsystem.Name != "" {
				return subsystem.Name
			}
		}
	}

	return product.Name
}

func loadPCIDatabase() *pcidb.PCIDB {
	pciOnce.Do(func() {
		pciDB, pciErr = pcidb.New()
	})
	if pciErr != nil || pciDB == nil {
		return nil
	}
	return pciDB
}

// splitPCIDeviceID splits the report's combined id ("0x1F0210DE": device in
// the high half, vendor in the low half) into lowercase vendor and device.
func splitPCIDeviceID(raw string) (vendor, device string) {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "0x")
	value = strings.TrimPrefix(value, "0X")
	if len(value) != 8 {
		return "", ""
	}
	value = strings.ToLower(value)
	for _, r := range value {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", ""
		}
	}
	return value[4:], value[:4]
}

func isGenericProductName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch lower {
	case "", "n/a", "unknown", "unknown error", "graphics device", "nvidia graphics device":
		return true
	}
	return strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "pci device")
}

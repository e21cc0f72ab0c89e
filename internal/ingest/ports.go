// internal/ingest/ports.go
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PortInfo describes one serial device found on the host.
type PortInfo struct {
	Device      string
	Description string
	HardwareID  string
}

var portPatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/ttyS*",
}

// ListAvailablePorts enumerates candidate serial devices. USB adapters
// carry a product description from sysfs when available; built-in
// UARTs report a generic one.
func ListAvailablePorts() []PortInfo {
	var ports []PortInfo
	for _, pattern := range portPatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, dev := range matches {
			ports = append(ports, describePort(dev))
		}
	}
	return ports
}

func describePort(dev string) PortInfo {
	name := filepath.Base(dev)
	info := PortInfo{
		Device:      dev,
		Description: "serial port",
		HardwareID:  "n/a",
	}

	sys := filepath.Join("/sys/class/tty", name, "device")
	if target, err := filepath.EvalSymlinks(sys); err == nil {
		if desc := readSysAttr(target, "product"); desc != "" {
			info.Description = desc
		}
		vendor := readSysAttr(target, "idVendor")
		product := readSysAttr(target, "idProduct")
		if vendor != "" && product != "" {
			info.HardwareID = fmt.Sprintf("USB VID:PID=%s:%s", vendor, product)
		}
	}
	return info
}

// readSysAttr walks up from the device node looking for the named
// sysfs attribute; USB tty devices keep it one or two levels above the
// interface directory.
func readSysAttr(dir, attr string) string {
	for i := 0; i < 3; i++ {
		raw, err := os.ReadFile(filepath.Join(dir, attr))
		if err == nil {
			return strings.TrimSpace(string(raw))
		}
		dir = filepath.Dir(dir)
	}
	return ""
}

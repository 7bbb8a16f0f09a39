package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	inputDevDir = "/dev/input"
	inputSysDir = "/sys/class/input"
)

type inputDevice struct {
	Path string
	Name string
}

// listInputDevices lists the evdev nodes under devDir with the device names
// the kernel reports in sysDir, so a wrong device setting can be corrected.
func listInputDevices(devDir, sysDir string) []inputDevice {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil
	}

	var devices []inputDevice
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "event") {
			continue
		}
		name := "(unknown)"
		if data, err := os.ReadFile(filepath.Join(sysDir, entry.Name(), "device", "name")); err == nil {
			name = strings.TrimSpace(string(data))
		}
		devices = append(devices, inputDevice{
			Path: filepath.Join(devDir, entry.Name()),
			Name: name,
		})
	}

	// event10 sorts after event9
	sort.Slice(devices, func(i, j int) bool {
		a, b := devices[i].Path, devices[j].Path
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return devices
}

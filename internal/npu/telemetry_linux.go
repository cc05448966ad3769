//go:build linux

package npu

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ReadTelemetry stats devPath and reads the optional attributes exposed under
// sysRoot. Missing sysfs attributes are left zero.
func ReadTelemetry(devPath, sysRoot string) (Telemetry, error) {
	var st unix.Stat_t
	if err := unix.Stat(devPath, &st); err != nil {
		return Telemetry{}, fmt.Errorf("%w: stat %s: %v", ErrDeviceUnavailable, devPath, err)
	}
	t := Telemetry{
		DevicePath: devPath,
		Major:      unix.Major(uint64(st.Rdev)),
		Minor:      unix.Minor(uint64(st.Rdev)),
	}
	if sysRoot == "" {
		return t, nil
	}
	t.Vendor = readAttr(filepath.Join(sysRoot, "device", "vendor"))
	t.DeviceID = readAttr(filepath.Join(sysRoot, "device", "device"))
	if link, err := os.Readlink(filepath.Join(sysRoot, "device", "driver")); err == nil {
		t.Driver = filepath.Base(link)
	}
	t.ClockMHz = readIntAttr(filepath.Join(sysRoot, "device", "npu_clock_mhz"))
	t.PowerMW = readIntAttr(filepath.Join(sysRoot, "device", "power_mw"))
	return t, nil
}

func readAttr(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readIntAttr(path string) int64 {
	s := readAttr(path)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

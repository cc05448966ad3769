//go:build linux

package npu

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadTelemetryCharDevice(t *testing.T) {
	sys := t.TempDir()
	dev := filepath.Join(sys, "device")
	if err := os.MkdirAll(dev, 0o755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dev, "vendor"), []byte("0x1022\n"), 0o644)
	_ = os.WriteFile(filepath.Join(dev, "npu_clock_mhz"), []byte("1800\n"), 0o644)
	_ = os.WriteFile(filepath.Join(dev, "power_mw"), []byte("not-a-number"), 0o644)

	tel, err := ReadTelemetry("/dev/null", sys)
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	if tel.Major != 1 || tel.Minor != 3 {
		t.Fatalf("/dev/null should be 1:3, got %d:%d", tel.Major, tel.Minor)
	}
	if tel.Vendor != "0x1022" || tel.ClockMHz != 1800 {
		t.Fatalf("unexpected sysfs readings %+v", tel)
	}
	if tel.PowerMW != 0 || tel.Driver != "" {
		t.Fatalf("unparseable or missing attributes should stay zero: %+v", tel)
	}
}

func TestReadTelemetryMissingDevice(t *testing.T) {
	_, err := ReadTelemetry(filepath.Join(t.TempDir(), "accel9"), "")
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

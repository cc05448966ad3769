package npu

import (
	"bufio"
	"fmt"
	"os"
)

// AppInfo describes a registered application.
type AppInfo struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Binary    string `json:"binary"`
	SeqWords  int    `json:"sequence_words"`
	KernelSym string `json:"kernel"`
}

// BinaryInfo describes a loaded binary.
type BinaryInfo struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Kernel  string `json:"kernel"`
	AppRefs int    `json:"apps"`
}

// Apps lists registered applications in id order.
func (m *Manager) Apps() []AppInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AppInfo, 0, len(m.apps))
	for i, a := range m.apps {
		b := m.binaries[a.bin]
		out = append(out, AppInfo{ID: i, Name: a.name, Binary: b.name, SeqWords: a.seq.Len(), KernelSym: b.kernel.Name()})
	}
	return out
}

// Binaries lists loaded binaries in id order.
func (m *Manager) Binaries() []BinaryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make([]int, len(m.binaries))
	for _, a := range m.apps {
		refs[a.bin]++
	}
	out := make([]BinaryInfo, 0, len(m.binaries))
	for i, b := range m.binaries {
		out = append(out, BinaryInfo{ID: i, Name: b.name, Kernel: b.kernel.Name(), AppRefs: refs[i]})
	}
	return out
}

// WriteTrace dumps a raw trace buffer to path as little-endian 32-bit words,
// one zero-padded 8-digit hex word per line. Trailing bytes that do not fill a
// word are ignored.
func WriteTrace(path string, trace []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("npu: create trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	for i := 0; i+4 <= len(trace); i += 4 {
		word := uint32(trace[i]) | uint32(trace[i+1])<<8 | uint32(trace[i+2])<<16 | uint32(trace[i+3])<<24
		if _, err := fmt.Fprintf(w, "%08x\n", word); err != nil {
			_ = f.Close()
			return fmt.Errorf("npu: write trace: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("npu: write trace: %w", err)
	}
	return f.Close()
}

// Telemetry is a point-in-time snapshot of the accelerator device node.
type Telemetry struct {
	DevicePath string `json:"device_path"`
	Major      uint32 `json:"major"`
	Minor      uint32 `json:"minor"`
	Vendor     string `json:"vendor,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	Driver     string `json:"driver,omitempty"`
	ClockMHz   int64  `json:"clock_mhz,omitempty"`
	PowerMW    int64  `json:"power_mw,omitempty"`
}

// Default locations of the accelerator device node and its sysfs class entry.
const (
	DefaultDevicePath = "/dev/accel/accel0"
	DefaultSysfsRoot  = "/sys/class/accel/accel0"
)

// Telemetry reads the device snapshot from the default locations.
func (m *Manager) Telemetry() (Telemetry, error) {
	return ReadTelemetry(DefaultDevicePath, DefaultSysfsRoot)
}

//go:build !linux

package npu

// ReadTelemetry is only implemented on Linux.
func ReadTelemetry(devPath, sysRoot string) (Telemetry, error) {
	return Telemetry{}, ErrTelemetryUnsupported
}

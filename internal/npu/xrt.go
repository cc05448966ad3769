package npu

import "fmt"

// OpenXRT opens the accelerator through the vendor runtime. This build
// carries no runtime bindings, so it always fails with ErrDeviceUnavailable
// and callers fall back to an explicit driver choice.
func OpenXRT(deviceID int) (Driver, error) {
	return nil, fmt.Errorf("%w: xrt runtime bindings not available, device %d", ErrDeviceUnavailable, deviceID)
}

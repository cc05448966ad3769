package npu

import (
	"errors"
	"fmt"
)

// ErrDeviceUnavailable is returned when no accelerator driver can be opened.
var ErrDeviceUnavailable = errors.New("npu: device unavailable")

// ErrTelemetryUnsupported is returned by Telemetry on platforms without a device query path.
var ErrTelemetryUnsupported = errors.New("npu: telemetry not supported on this platform")

// ErrInvalidHandle is returned when a zero Handle is used to launch work.
var ErrInvalidHandle = errors.New("npu: invalid handle")

// Resource names the registry that ran out of slots.
type Resource string

const (
	ResourceBinaries Resource = "binaries"
	ResourceApps     Resource = "apps"
)

// CapacityError reports that a registry hit its hardware ceiling.
type CapacityError struct {
	Resource Resource
	Limit    int
	Name     string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("npu: max number of %s reached (%d) registering %q", e.Resource, e.Limit, e.Name)
}

// IsCapacity reports whether err is a CapacityError.
func IsCapacity(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}

// LoadError reports a failed binary handshake. Step is the handshake step that failed.
type LoadError struct {
	Binary string
	Step   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("npu: load %q failed at %s: %v", e.Binary, e.Step, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

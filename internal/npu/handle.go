package npu

import "context"

// Handle is a lightweight reference into a Manager's registry. It holds no
// hardware resources and must not outlive the Manager that produced it.
type Handle struct {
	AppID    int
	Sequence *Sequence

	binID  int
	kernel Kernel
	device Device
}

// Valid reports whether h references a registered application.
func (h Handle) Valid() bool { return h.kernel != nil && h.AppID >= 0 }

// Device returns the device the application runs on.
func (h Handle) Device() Device { return h.device }

// KernelName returns the kernel symbol the application launches.
func (h Handle) KernelName() string {
	if h.kernel == nil {
		return ""
	}
	return h.kernel.Name()
}

// Run launches the application's command sequence with args and waits for completion.
func (h Handle) Run(ctx context.Context, args ...*Buffer) error {
	if !h.Valid() {
		return ErrInvalidHandle
	}
	return h.kernel.Launch(ctx, h.Sequence, args)
}

package npu

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// KernelFunc is the behaviour of a simulated kernel launch.
type KernelFunc func(ctx context.Context, seq *Sequence, args []*Buffer) error

// SimDriver is an in-process accelerator used by tests and the "sim" driver
// setting. Launches run KernelFunc synchronously.
type SimDriver struct {
	DeviceID   int
	DeviceName string
	// Kernel runs on every launch. Nil launches succeed without side effects.
	Kernel KernelFunc

	mu          sync.Mutex
	failStep    map[string]string
	noKernel    map[string]bool
	registered  map[string]int
	unregisters int
	contexts    int
	launches    atomic.Int64
}

// NewSimDriver returns a simulated device with a no-op kernel.
func NewSimDriver() *SimDriver {
	return &SimDriver{DeviceName: "sim-npu"}
}

// FailOn makes the handshake for binary fail at step ("register", "context" or "kernel").
func (d *SimDriver) FailOn(binary, step string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failStep == nil {
		d.failStep = map[string]string{}
	}
	d.failStep[binary] = step
}

// OmitKernel makes binary expose no launchable kernel symbol.
func (d *SimDriver) OmitKernel(binary string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.noKernel == nil {
		d.noKernel = map[string]bool{}
	}
	d.noKernel[binary] = true
}

// Registrations returns how many times binary was registered.
func (d *SimDriver) Registrations(binary string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registered[binary]
}

// Unregistrations returns how many registrations were rolled back.
func (d *SimDriver) Unregistrations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unregisters
}

// OpenContexts returns the number of hardware contexts created and not yet closed.
func (d *SimDriver) OpenContexts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.contexts
}

// Launches returns the number of kernel launches across all binaries.
func (d *SimDriver) Launches() int64 { return d.launches.Load() }

func (d *SimDriver) Device() Device { return simDevice{id: d.DeviceID, name: d.DeviceName} }

func (d *SimDriver) RegisterBinary(name string) (Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failStep[name] == "register" {
		return nil, errors.New("simulated register failure")
	}
	if d.registered == nil {
		d.registered = map[string]int{}
	}
	d.registered[name]++
	kernels := []string{KernelPrefix + "_0"}
	if d.noKernel[name] {
		kernels = []string{"dma_only"}
	}
	return &simImage{name: name, kernels: kernels}, nil
}

func (d *SimDriver) UnregisterBinary(img Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unregisters++
	return nil
}

func (d *SimDriver) CreateContext(img Image) (HWContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failStep[img.Name()] == "context" {
		return nil, errors.New("simulated context failure")
	}
	d.contexts++
	return &simContext{drv: d}, nil
}

func (d *SimDriver) OpenKernel(hw HWContext, img Image, symbol string) (Kernel, error) {
	d.mu.Lock()
	step := d.failStep[img.Name()]
	d.mu.Unlock()
	if step == "kernel" {
		return nil, errors.New("simulated kernel failure")
	}
	return &simKernel{drv: d, name: symbol}, nil
}

type simDevice struct {
	id   int
	name string
}

func (s simDevice) ID() int      { return s.id }
func (s simDevice) Name() string { return s.name }

type simImage struct {
	name    string
	kernels []string
}

func (s *simImage) Name() string      { return s.name }
func (s *simImage) Kernels() []string { return s.kernels }

type simContext struct {
	drv    *SimDriver
	closed bool
}

func (c *simContext) Close() error {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.drv.contexts--
	}
	return nil
}

type simKernel struct {
	drv  *SimDriver
	name string
}

func (k *simKernel) Name() string { return k.name }

func (k *simKernel) Launch(ctx context.Context, seq *Sequence, args []*Buffer) error {
	k.drv.launches.Add(1)
	if k.drv.Kernel == nil {
		return nil
	}
	return k.drv.Kernel(ctx, seq, args)
}

package npu

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Hard ceilings imposed by the device driver.
const (
	MaxBinaries = 16
	MaxApps     = 64
)

type binary struct {
	name   string
	image  Image
	hw     HWContext
	kernel Kernel
}

type application struct {
	name string
	bin  int
	seq  *Sequence
}

// Manager registers binaries and named applications and hands out handles.
// There is one Manager per physical device. Entries are never unloaded, so ids
// assigned in registration order stay valid for the Manager's lifetime.
type Manager struct {
	mu       sync.Mutex
	drv      Driver
	build    SequenceFunc
	binaries []*binary
	apps     []*application
	loads    int
	log      zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithSequenceFunc sets the builder used by CreateApp for new applications.
func WithSequenceFunc(f SequenceFunc) Option { return func(m *Manager) { m.build = f } }

// New returns a Manager over drv.
func New(drv Driver, opts ...Option) *Manager {
	m := &Manager{
		drv:      drv,
		binaries: make([]*binary, 0, MaxBinaries),
		apps:     make([]*application, 0, MaxApps),
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.build == nil {
		m.build = func(app string) (*Sequence, error) { return &Sequence{App: app}, nil }
	}
	return m
}

// Device returns the device the manager drives.
func (m *Manager) Device() Device { return m.drv.Device() }

// CreateApp returns a handle to the application appName bound to binaryName,
// loading the binary and building the command sequence on first use. Calling
// it again with the same names returns a handle to the same application.
func (m *Manager) CreateApp(appName, binaryName string) (Handle, error) {
	return m.CreateAppWith(appName, binaryName, nil)
}

// CreateAppWith is CreateApp with an explicit sequence builder for this call.
// A nil build falls back to the manager's builder.
func (m *Manager) CreateAppWith(appName, binaryName string, build SequenceFunc) (Handle, error) {
	if strings.TrimSpace(appName) == "" {
		return Handle{}, fmt.Errorf("npu: empty application name")
	}
	if build == nil {
		build = m.build
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	binID := m.findBinary(binaryName)
	if binID < 0 {
		if len(m.binaries) >= MaxBinaries {
			return Handle{}, &CapacityError{Resource: ResourceBinaries, Limit: MaxBinaries, Name: binaryName}
		}
		b, err := m.loadBinary(binaryName)
		if err != nil {
			m.log.Error().Err(err).Str("binary", binaryName).Msg("npu event=binary_load_error")
			return Handle{}, err
		}
		m.binaries = append(m.binaries, b)
		binID = len(m.binaries) - 1
		m.log.Debug().Str("binary", binaryName).Int("id", binID).Msg("npu event=binary_registered")
	} else {
		m.log.Debug().Str("binary", binaryName).Int("id", binID).Msg("npu event=binary_found")
	}

	appID := m.findApp(appName)
	if appID < 0 {
		if len(m.apps) >= MaxApps {
			return Handle{}, &CapacityError{Resource: ResourceApps, Limit: MaxApps, Name: appName}
		}
		seq, err := build(appName)
		if err != nil {
			return Handle{}, fmt.Errorf("npu: build sequence for %q: %w", appName, err)
		}
		m.apps = append(m.apps, &application{name: appName, bin: binID, seq: seq})
		appID = len(m.apps) - 1
		m.log.Debug().Str("app", appName).Int("id", appID).Int("words", seq.Len()).Msg("npu event=app_registered")
	}
	return m.handleLocked(appID), nil
}

// Lookup returns the handle of a registered application by name.
func (m *Manager) Lookup(appName string) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.findApp(appName)
	if id < 0 {
		return Handle{}, false
	}
	return m.handleLocked(id), true
}

// Loads reports how many binaries were loaded onto the device.
func (m *Manager) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// Close releases every hardware context and unregisters every binary, in
// reverse load order. Handles obtained earlier must not be used afterwards.
// The Manager is empty and reusable after Close.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for i := len(m.binaries) - 1; i >= 0; i-- {
		b := m.binaries[i]
		if err := b.hw.Close(); err != nil {
			errs = append(errs, fmt.Errorf("npu: close context of %q: %w", b.name, err))
		}
		if err := m.drv.UnregisterBinary(b.image); err != nil {
			errs = append(errs, fmt.Errorf("npu: unregister %q: %w", b.name, err))
		}
	}
	if n := len(m.binaries); n > 0 {
		m.log.Debug().Int("binaries", n).Int("apps", len(m.apps)).Msg("npu event=closed")
	}
	m.binaries = m.binaries[:0]
	m.apps = m.apps[:0]
	return errors.Join(errs...)
}

func (m *Manager) handleLocked(appID int) Handle {
	app := m.apps[appID]
	bin := m.binaries[app.bin]
	return Handle{
		AppID:    appID,
		Sequence: app.seq,
		binID:    app.bin,
		kernel:   bin.kernel,
		device:   m.drv.Device(),
	}
}

func (m *Manager) findBinary(name string) int {
	for i, b := range m.binaries {
		if b.name == name {
			return i
		}
	}
	return -1
}

func (m *Manager) findApp(name string) int {
	for i, a := range m.apps {
		if a.name == name {
			return i
		}
	}
	return -1
}

// loadBinary runs the register/context/kernel handshake. Nothing is kept
// unless every step succeeds.
func (m *Manager) loadBinary(name string) (*binary, error) {
	img, err := m.drv.RegisterBinary(name)
	if err != nil {
		return nil, &LoadError{Binary: name, Step: "register", Err: err}
	}
	hw, err := m.drv.CreateContext(img)
	if err != nil {
		_ = m.drv.UnregisterBinary(img)
		return nil, &LoadError{Binary: name, Step: "context", Err: err}
	}
	symbol := ""
	for _, k := range img.Kernels() {
		if strings.HasPrefix(k, KernelPrefix) {
			symbol = k
			break
		}
	}
	if symbol == "" {
		_ = hw.Close()
		_ = m.drv.UnregisterBinary(img)
		return nil, &LoadError{Binary: name, Step: "kernel", Err: fmt.Errorf("no %s* kernel in binary", KernelPrefix)}
	}
	k, err := m.drv.OpenKernel(hw, img, symbol)
	if err != nil {
		_ = hw.Close()
		_ = m.drv.UnregisterBinary(img)
		return nil, &LoadError{Binary: name, Step: "kernel", Err: err}
	}
	m.loads++
	return &binary{name: name, image: img, hw: hw, kernel: k}, nil
}

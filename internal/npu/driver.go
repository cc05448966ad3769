package npu

import "context"

// KernelPrefix is the symbol prefix of the compute kernel inside a binary.
const KernelPrefix = "MLIR_AIE"

// Buffer is a host-visible buffer object passed to a kernel launch.
// Group is the kernel argument group the buffer is bound to.
type Buffer struct {
	Group int
	Data  []byte
}

// NewBuffer allocates a zeroed buffer of n bytes bound to group.
func NewBuffer(group, n int) *Buffer {
	return &Buffer{Group: group, Data: make([]byte, n)}
}

// Sequence is the precomputed command stream of one application. The words
// are produced by the compute-graph builder; the manager only stores them.
type Sequence struct {
	App   string
	Words []uint32
}

// Len returns the sequence length in 32-bit words.
func (s *Sequence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Words)
}

// SequenceFunc builds the command sequence for an application name.
type SequenceFunc func(app string) (*Sequence, error)

// Device identifies the physical accelerator.
type Device interface {
	ID() int
	Name() string
}

// Image is a binary registered with the device.
type Image interface {
	Name() string
	// Kernels lists the kernel symbols the binary exposes.
	Kernels() []string
}

// HWContext is a hardware context created from a registered image.
type HWContext interface {
	Close() error
}

// Kernel launches command sequences. Launch blocks until the device signals completion.
type Kernel interface {
	Name() string
	Launch(ctx context.Context, seq *Sequence, args []*Buffer) error
}

// Driver is the device handshake used by Manager. RegisterBinary and
// CreateContext are the two halves of loading a binary; UnregisterBinary undoes
// the first half when the second fails.
type Driver interface {
	Device() Device
	RegisterBinary(name string) (Image, error)
	UnregisterBinary(img Image) error
	CreateContext(img Image) (HWContext, error)
	OpenKernel(hw HWContext, img Image, symbol string) (Kernel, error)
}

package spatial

import (
	"fmt"

	"github.com/tphakala/go-binaural/internal/hrir"
	"github.com/tphakala/go-binaural/internal/kernel"
)

// KernelSource resolves a direction to the prepared kernel of the nearest
// cataloged IR.
type KernelSource interface {
	Nearest(azimuth, elevation float64) (*kernel.Kernel, bool)
}

// Bank pairs a library with the kernels prepared from its records.
// Kernel i was built from library record i.
type Bank struct {
	library *hrir.Library
	kernels []*kernel.Kernel
}

// NewBank creates a bank. The kernel count must match the library size.
func NewBank(lib *hrir.Library, kernels []*kernel.Kernel) (*Bank, error) {
	if lib.Len() != len(kernels) {
		return nil, fmt.Errorf("%w: %d records, %d kernels", ErrBankMismatch, lib.Len(), len(kernels))
	}
	return &Bank{library: lib, kernels: kernels}, nil
}

// Library returns the underlying IR library.
func (b *Bank) Library() *hrir.Library {
	if b == nil {
		return nil
	}
	return b.library
}

// Len returns the number of kernels. A nil bank is empty.
func (b *Bank) Len() int {
	if b == nil {
		return 0
	}
	return len(b.kernels)
}

// Kernel returns kernel i.
func (b *Bank) Kernel(i int) *kernel.Kernel { return b.kernels[i] }

// Nearest implements KernelSource.
func (b *Bank) Nearest(azimuth, elevation float64) (*kernel.Kernel, bool) {
	if b.Len() == 0 {
		return nil, false
	}
	idx := b.library.BestMatchIndex(azimuth, elevation)
	if idx < 0 {
		return nil, false
	}
	return b.kernels[idx], true
}

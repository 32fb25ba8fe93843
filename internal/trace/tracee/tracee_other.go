// Stub Controller for every platform other than linux/arm64, so the
// package still builds elsewhere. Every operation fails with
// ErrUnsupportedPlatform: the AArch64 debug-register layout and BRK
// encoding this package marshals have no equivalent to fall back to.
//
//go:build !(linux && arm64)

package tracee

import "errors"

// ErrUnsupportedPlatform is returned by every PtraceController method on a
// non-linux/arm64 build.
var ErrUnsupportedPlatform = errors.New("tracee: global-variable tracing is only supported on linux/arm64")

// PtraceController is the stub Controller implementation for unsupported
// platforms.
type PtraceController struct{}

// New returns a stub Controller; pid is accepted for signature
// compatibility with the linux/arm64 implementation but is unused.
func New(pid int) *PtraceController { return &PtraceController{} }

func (c *PtraceController) WaitForStop() (Status, error)   { return Status{}, ErrUnsupportedPlatform }
func (c *PtraceController) PeekWord(uint64) (uint64, error) { return 0, ErrUnsupportedPlatform }
func (c *PtraceController) PokeWord(uint64, uint64) error   { return ErrUnsupportedPlatform }
func (c *PtraceController) GetGeneralRegs() (GeneralRegs, error) {
	return GeneralRegs{}, ErrUnsupportedPlatform
}
func (c *PtraceController) SetGeneralRegs(GeneralRegs) error   { return ErrUnsupportedPlatform }
func (c *PtraceController) GetDebugRegs() ([]byte, error)      { return nil, ErrUnsupportedPlatform }
func (c *PtraceController) SetDebugRegs([]byte) error          { return ErrUnsupportedPlatform }
func (c *PtraceController) SingleStep(sig int) error           { return ErrUnsupportedPlatform }
func (c *PtraceController) Continue(sig int) error             { return ErrUnsupportedPlatform }

var _ Controller = (*PtraceController)(nil)

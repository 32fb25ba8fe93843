// Real ptrace-based Controller for linux/arm64. Uses raw syscall.Syscall6
// with syscall.SYS_PTRACE directly rather than golang.org/x/sys/unix typed
// helpers: PEEKDATA stores the word through the data pointer and POKEDATA
// takes the value itself as the data argument, a calling convention the
// typed wrappers don't expose, and GETREGSET/SETREGSET need an arbitrary
// NT_* register-set id (NT_ARM_HW_WATCH) that has no typed helper at all.
//
//go:build linux && arm64

package tracee

import (
	"encoding/binary"
	"fmt"
	"syscall"
	"unsafe"
)

// ─── ptrace request numbers ──────────────────────────────────────────────
// From <linux/ptrace.h>. Stable across architectures; never change.
const (
	ptraceTraceme    = 0
	ptracePeektext   = 1
	ptracePeekdata   = 2
	ptracePoketext   = 4
	ptracePokedata   = 5
	ptraceCont       = 7
	ptraceKill       = 8
	ptraceSinglestep = 9
	ptraceGetregset  = 0x4204
	ptraceSetregset  = 0x4205
)

// ntPrstatus is the register-set id for the general-purpose registers
// (NT_PRSTATUS), used with GETREGSET/SETREGSET.
const ntPrstatus = 1

// ntArmHwWatch is the AArch64 hardware-watchpoint debug-register set id.
const ntArmHwWatch = 0x404

// iovec mirrors struct iovec for the GETREGSET/SETREGSET payload pointer.
type iovec struct {
	base uintptr
	len  uint64
}

// PtraceController is the linux/arm64 Controller implementation. It wraps a
// single already-attached tracee pid; the tracee must be in the stopped
// state for every method to succeed (see package doc).
type PtraceController struct {
	pid int
}

// New wraps pid, the already-forked, already-ptraced (TRACEME'd) child
// process id, as a Controller.
func New(pid int) *PtraceController {
	return &PtraceController{pid: pid}
}

func (c *PtraceController) ptrace(req uintptr, addr, data unsafe.Pointer) (uintptr, error) {
	r1, _, errno := syscall.Syscall6(syscall.SYS_PTRACE, req, uintptr(c.pid), uintptr(addr), uintptr(data), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return r1, nil
}

// WaitForStop implements Controller.
func (c *PtraceController) WaitForStop() (Status, error) {
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(c.pid, &ws, 0, nil)
	if err != nil {
		return Status{}, &ControlError{Op: "wait4", Err: err}
	}

	switch {
	case ws.Exited():
		return Status{Kind: Exited, Signal: ws.ExitStatus()}, nil
	case ws.Signaled():
		return Status{Kind: Signaled, Signal: int(ws.Signal())}, nil
	case ws.Stopped():
		return Status{Kind: Stopped, Signal: int(ws.StopSignal())}, nil
	default:
		return Status{}, &ControlError{Op: "wait4", Err: fmt.Errorf("unrecognized wait status %#x", uint32(ws))}
	}
}

// PeekWord implements Controller.
func (c *PtraceController) PeekWord(addr uint64) (uint64, error) {
	var word uint64
	_, err := c.ptrace(ptracePeekdata, unsafe.Pointer(uintptr(addr)), unsafe.Pointer(&word))
	if err != nil {
		return 0, &ControlError{Op: "PEEKDATA", Err: err}
	}
	return word, nil
}

// PokeWord implements Controller.
func (c *PtraceController) PokeWord(addr, value uint64) error {
	_, err := c.ptrace(ptracePokedata, unsafe.Pointer(uintptr(addr)), unsafe.Pointer(uintptr(value)))
	if err != nil {
		return &ControlError{Op: "POKEDATA", Err: err}
	}
	return nil
}

// user_pt_regs layout on AArch64: 31 general registers, sp, pc, pstate —
// all as consecutive uint64 (pstate is stored widened to 64 bits by the
// kernel's regset code).
const generalRegsSize = (31 + 3) * 8

// GetGeneralRegs implements Controller.
func (c *PtraceController) GetGeneralRegs() (GeneralRegs, error) {
	buf := make([]byte, generalRegsSize)
	iov := iovec{base: uintptr(unsafe.Pointer(&buf[0])), len: uint64(len(buf))}
	_, err := c.ptrace(ptraceGetregset, unsafe.Pointer(uintptr(ntPrstatus)), unsafe.Pointer(&iov))
	if err != nil {
		return GeneralRegs{}, &ControlError{Op: "GETREGSET(NT_PRSTATUS)", Err: err}
	}
	return decodeGeneralRegs(buf), nil
}

// SetGeneralRegs implements Controller.
func (c *PtraceController) SetGeneralRegs(regs GeneralRegs) error {
	buf := encodeGeneralRegs(regs)
	iov := iovec{base: uintptr(unsafe.Pointer(&buf[0])), len: uint64(len(buf))}
	_, err := c.ptrace(ptraceSetregset, unsafe.Pointer(uintptr(ntPrstatus)), unsafe.Pointer(&iov))
	if err != nil {
		return &ControlError{Op: "SETREGSET(NT_PRSTATUS)", Err: err}
	}
	return nil
}

func decodeGeneralRegs(buf []byte) GeneralRegs {
	var g GeneralRegs
	for i := 0; i < 31; i++ {
		g.Regs[i] = binary.NativeEndian.Uint64(buf[i*8 : i*8+8])
	}
	g.SP = binary.NativeEndian.Uint64(buf[31*8 : 31*8+8])
	g.PC = binary.NativeEndian.Uint64(buf[32*8 : 32*8+8])
	g.PState = binary.NativeEndian.Uint64(buf[33*8 : 33*8+8])
	return g
}

func encodeGeneralRegs(g GeneralRegs) []byte {
	buf := make([]byte, generalRegsSize)
	for i := 0; i < 31; i++ {
		binary.NativeEndian.PutUint64(buf[i*8:i*8+8], g.Regs[i])
	}
	binary.NativeEndian.PutUint64(buf[31*8:31*8+8], g.SP)
	binary.NativeEndian.PutUint64(buf[32*8:32*8+8], g.PC)
	binary.NativeEndian.PutUint64(buf[33*8:33*8+8], g.PState)
	return buf
}

// GetDebugRegs implements Controller.
func (c *PtraceController) GetDebugRegs() ([]byte, error) {
	// 16 slots * 16 bytes/slot is the maximum possible image size; the
	// kernel reports back the iovec length actually used, which we then
	// trim to.
	buf := make([]byte, 16*16)
	iov := iovec{base: uintptr(unsafe.Pointer(&buf[0])), len: uint64(len(buf))}
	_, err := c.ptrace(ptraceGetregset, unsafe.Pointer(uintptr(ntArmHwWatch)), unsafe.Pointer(&iov))
	if err != nil {
		return nil, &ControlError{Op: "GETREGSET(NT_ARM_HW_WATCH)", Err: err}
	}
	return buf[:iov.len], nil
}

// SetDebugRegs implements Controller.
func (c *PtraceController) SetDebugRegs(buf []byte) error {
	if len(buf) == 0 {
		return &ControlError{Op: "SETREGSET(NT_ARM_HW_WATCH)", Err: fmt.Errorf("empty debug register image")}
	}
	iov := iovec{base: uintptr(unsafe.Pointer(&buf[0])), len: uint64(len(buf))}
	_, err := c.ptrace(ptraceSetregset, unsafe.Pointer(uintptr(ntArmHwWatch)), unsafe.Pointer(&iov))
	if err != nil {
		return &ControlError{Op: "SETREGSET(NT_ARM_HW_WATCH)", Err: err}
	}
	return nil
}

// SingleStep implements Controller.
func (c *PtraceController) SingleStep(sig int) error {
	_, err := c.ptrace(ptraceSinglestep, nil, unsafe.Pointer(uintptr(sig)))
	if err != nil {
		return &ControlError{Op: "SINGLESTEP", Err: err}
	}
	return nil
}

// Continue implements Controller.
func (c *PtraceController) Continue(sig int) error {
	_, err := c.ptrace(ptraceCont, nil, unsafe.Pointer(uintptr(sig)))
	if err != nil {
		return &ControlError{Op: "CONT", Err: err}
	}
	return nil
}

var _ Controller = (*PtraceController)(nil)

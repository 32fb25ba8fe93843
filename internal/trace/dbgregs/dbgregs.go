// Package dbgregs encodes and decodes the AArch64 hardware watchpoint
// debug-register image used by the kernel's NT_ARM_HW_WATCH register set.
package dbgregs

import (
	"encoding/binary"
	"fmt"
)

// NumSlots is the number of watchpoint slots in the AArch64 debug-register
// image. The kernel may expose fewer active slots than this via the
// register-set length returned from a GETREGSET; callers must preserve
// whatever length they first observed.
const NumSlots = 16

// slotSize is the on-the-wire byte size of one {addr, ctrl, pad} slot:
// 8 + 4 + 4 bytes.
const slotSize = 16

const (
	accessReadWrite uint32 = 3
	enableBit       uint32 = 1
)

// UnsupportedSizeError reports a byte width outside {1, 2, 4, 8}.
type UnsupportedSizeError struct {
	Size uint64
}

func (e *UnsupportedSizeError) Error() string {
	return fmt.Sprintf("dbgregs: unsupported watch size %d (must be 1, 2, 4, or 8)", e.Size)
}

// sizeEncoding maps a variable byte-width to its AArch64 debug-register
// size encoding, per the mapping in §4.2: 1→0, 2→1, 4→3, 8→2.
func sizeEncoding(size uint64) (uint32, error) {
	switch size {
	case 1:
		return 0, nil
	case 2:
		return 1, nil
	case 4:
		return 3, nil
	case 8:
		return 2, nil
	default:
		return 0, &UnsupportedSizeError{Size: size}
	}
}

// EncodeControl builds the 32-bit AArch64 watchpoint control word for a
// read+write watchpoint over a variable of the given byte width:
//
//	control = (size_encoding << 5) | (access_type << 3) | enable
func EncodeControl(size uint64) (uint32, error) {
	enc, err := sizeEncoding(size)
	if err != nil {
		return 0, err
	}
	return (enc << 5) | (accessReadWrite << 3) | enableBit, nil
}

// DecodeControl splits a control word back into its size encoding, access
// type, and enable bit, for diagnostic display.
func DecodeControl(control uint32) (sizeEnc, accessType uint32, enabled bool) {
	sizeEnc = (control >> 5) & 0x3
	accessType = (control >> 3) & 0x3
	enabled = control&0x1 != 0
	return
}

// Image is the 16-slot AArch64 debug-register buffer exchanged with the
// kernel via PTRACE_GETREGSET/PTRACE_SETREGSET on the NT_ARM_HW_WATCH
// register set.
type Image struct {
	Addr [NumSlots]uint64
	Ctrl [NumSlots]uint32
	pad  [NumSlots]uint32
}

// NewSingleWatch builds an Image with slot 0 set to watch addr for
// read+write access over a variable of the given byte width, and every
// other slot zeroed.
func NewSingleWatch(addr, size uint64) (Image, error) {
	var img Image
	ctrl, err := EncodeControl(size)
	if err != nil {
		return Image{}, err
	}
	img.Addr[0] = addr
	img.Ctrl[0] = ctrl
	return img, nil
}

// Marshal encodes img as exactly length bytes, matching the register-set
// length the kernel reported for a prior GETREGSET call. length must be a
// multiple of slotSize and at most NumSlots*slotSize; a shorter length
// truncates the number of slots written, mirroring what the kernel expects
// back on SETREGSET.
func (img Image) Marshal(length int) []byte {
	if length > NumSlots*slotSize {
		length = NumSlots * slotSize
	}
	slots := length / slotSize
	buf := make([]byte, slots*slotSize)
	for i := 0; i < slots; i++ {
		off := i * slotSize
		binary.NativeEndian.PutUint64(buf[off:off+8], img.Addr[i])
		binary.NativeEndian.PutUint32(buf[off+8:off+12], img.Ctrl[i])
		binary.NativeEndian.PutUint32(buf[off+12:off+16], img.pad[i])
	}
	return buf
}

// Unmarshal decodes buf (as returned by a GETREGSET call) into an Image.
// buf's length need not be a multiple of slotSize; any trailing partial
// slot is ignored.
func Unmarshal(buf []byte) Image {
	var img Image
	slots := len(buf) / slotSize
	if slots > NumSlots {
		slots = NumSlots
	}
	for i := 0; i < slots; i++ {
		off := i * slotSize
		img.Addr[i] = binary.NativeEndian.Uint64(buf[off : off+8])
		img.Ctrl[i] = binary.NativeEndian.Uint32(buf[off+8 : off+12])
		img.pad[i] = binary.NativeEndian.Uint32(buf[off+12 : off+16])
	}
	return img
}

// Package target resolves the runtime addresses of a global variable and of
// main in a tracee's address space, compensating for ASLR. It reads the ELF
// symbol table and program headers of the executable directly — no shell-out
// to nm or readelf is used.
package target

import (
	"bufio"
	"debug/elf"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// ResolvedTarget is the output of Resolve: absolute runtime addresses for
// the watched variable and for main, plus the variable's byte width.
type ResolvedTarget struct {
	VariableRuntimeAddress uint64
	VariableSize           uint64
	MainRuntimeAddress     uint64

	// Diagnostic fields, recorded for the resolution-diagnostics output line.
	ELFVirtualBase  uint64
	RuntimeBase     uint64
	ASLRShift       uint64
	VariableELFAddr uint64
	MainELFAddr     uint64
}

// ErrorKind enumerates the fatal resolution failure modes of §4.1.
type ErrorKind int

const (
	MissingLoadSegment ErrorKind = iota
	MissingMapping
	SymbolNotFound
	UnsupportedSize
)

func (k ErrorKind) String() string {
	switch k {
	case MissingLoadSegment:
		return "MissingLoadSegment"
	case MissingMapping:
		return "MissingMapping"
	case SymbolNotFound:
		return "SymbolNotFound"
	case UnsupportedSize:
		return "UnsupportedSize"
	default:
		return "Unknown"
	}
}

// ResolutionError is a fatal error from the symbol & map resolver.
type ResolutionError struct {
	Kind ErrorKind
	Msg  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution: %s: %s", e.Kind, e.Msg)
}

// validSizes is the set of variable widths the codec and tracee controller
// can watch.
var validSizes = map[uint64]bool{1: true, 2: true, 4: true, 8: true}

// Resolve computes a ResolvedTarget for variableName in the ELF at
// executablePath, given the pid of an already-forked, pre-ptraced tracee.
// It implements §4.1 of the algorithm directly against debug/elf and
// /proc/<pid>/maps: no external processes are spawned.
func Resolve(executablePath, variableName string, pid int) (*ResolvedTarget, error) {
	f, err := elf.Open(executablePath)
	if err != nil {
		return nil, fmt.Errorf("target: open ELF %q: %w", executablePath, err)
	}
	defer f.Close()

	elfBase, err := elfVirtualBase(f)
	if err != nil {
		return nil, err
	}

	runtimeBase, err := runtimeBase(pid, executablePath)
	if err != nil {
		return nil, err
	}

	shift := runtimeBase - elfBase

	varAddr, varSize, err := lookupVariable(f, variableName)
	if err != nil {
		return nil, err
	}
	if !validSizes[varSize] {
		return nil, &ResolutionError{Kind: UnsupportedSize, Msg: fmt.Sprintf("variable %q has unsupported size %d", variableName, varSize)}
	}

	mainAddr, err := lookupMain(f)
	if err != nil {
		return nil, err
	}

	return &ResolvedTarget{
		VariableRuntimeAddress: varAddr + shift,
		VariableSize:           varSize,
		MainRuntimeAddress:     mainAddr + shift,
		ELFVirtualBase:         elfBase,
		RuntimeBase:            runtimeBase,
		ASLRShift:              shift,
		VariableELFAddr:        varAddr,
		MainELFAddr:            mainAddr,
	}, nil
}

// elfVirtualBase returns the virtual address of the first PT_LOAD segment in
// the program header table.
func elfVirtualBase(f *elf.File) (uint64, error) {
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			return p.Vaddr, nil
		}
	}
	return 0, &ResolutionError{Kind: MissingLoadSegment, Msg: "no PT_LOAD segment in program header table"}
}

// runtimeBase returns the low address of the first mapping in
// /proc/<pid>/maps whose trailing pathname equals execPath exactly.
func runtimeBase(pid int, execPath string) (uint64, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("target: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		mappedPath := fields[len(fields)-1]
		if mappedPath != execPath {
			continue
		}
		addrRange := fields[0]
		lowStr, _, found := strings.Cut(addrRange, "-")
		if !found {
			continue
		}
		low, err := strconv.ParseUint(lowStr, 16, 64)
		if err != nil {
			continue
		}
		return low, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("target: scan %s: %w", path, err)
	}
	return 0, &ResolutionError{Kind: MissingMapping, Msg: fmt.Sprintf("no mapping for %q in %s", execPath, path)}
}

// lookupVariable finds variableName in the ELF symbol table, demangling each
// candidate symbol so that a plain source-level name matches a mangled
// (e.g. Itanium C++) entry. Returns its address and size.
func lookupVariable(f *elf.File, variableName string) (addr, size uint64, err error) {
	syms, symErr := f.Symbols()
	if symErr != nil {
		return 0, 0, &ResolutionError{Kind: SymbolNotFound, Msg: fmt.Sprintf("reading symbol table: %v", symErr)}
	}

	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_OBJECT {
			continue
		}
		if symbolMatches(s.Name, variableName) {
			return s.Value, s.Size, nil
		}
	}
	return 0, 0, &ResolutionError{Kind: SymbolNotFound, Msg: fmt.Sprintf("variable %q not found in symbol table", variableName)}
}

// lookupMain finds the text symbol "main" in the ELF symbol table.
func lookupMain(f *elf.File) (uint64, error) {
	syms, err := f.Symbols()
	if err != nil {
		return 0, &ResolutionError{Kind: SymbolNotFound, Msg: fmt.Sprintf("reading symbol table: %v", err)}
	}
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if symbolMatches(s.Name, "main") {
			return s.Value, nil
		}
	}
	return 0, &ResolutionError{Kind: SymbolNotFound, Msg: "main not present or not a text symbol"}
}

// symbolMatches reports whether rawName, after C++ demangling, equals want —
// or whether rawName equals want verbatim (the common case for C symbols,
// and the fallback when demangling fails or is a no-op).
func symbolMatches(rawName, want string) bool {
	if rawName == want {
		return true
	}
	demangled := demangle.Filter(rawName)
	return demangled == want
}

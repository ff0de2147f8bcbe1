// Package memacc implements the memory access port over address-range
// accessors: in-memory buffers, dump files, callbacks into a live target,
// optionally behind an x86-64 page-table walker.
package memacc

import (
	"fmt"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

// Type describes the storage type of the underlying memory accessor.
type Type int

const (
	TypeUnknown Type = iota
	TypeFile         // Binary data file accessor
	TypeBufPtr       // Memory buffer accessor
	TypeCBIf         // Callback interface accessor - use for live memory access
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "File"
	case TypeBufPtr:
		return "Buffer"
	case TypeCBIf:
		return "Callback"
	default:
		return "Unknown"
	}
}

type spaceKind uint8

const (
	spaceNone spaceKind = iota
	spaceAny
	spaceKernel
	spacePhysical
	spaceDTB
)

// Space is the address space an accessor serves. Spaces are comparable and
// used as cache keys.
type Space struct {
	kind spaceKind
	dtb  vmi.Addr
}

var (
	SpaceNone     = Space{}
	SpaceAny      = Space{kind: spaceAny}
	SpaceKernel   = Space{kind: spaceKernel}
	SpacePhysical = Space{kind: spacePhysical}
)

// SpaceDTB is the virtual address space rooted at page table dtb.
func SpaceDTB(dtb vmi.Addr) Space {
	return Space{kind: spaceDTB, dtb: dtb}
}

// SpaceFor maps a port context onto the accessor space serving it when
// addresses are not translated.
func SpaceFor(ctx vmi.Context) Space {
	if dtb, ok := ctx.DTB(); ok {
		return SpaceDTB(dtb)
	}
	return SpaceKernel
}

// Contains reports whether an accessor registered for s serves a request in req.
func (s Space) Contains(req Space) bool {
	if s.kind == spaceNone || req.kind == spaceNone {
		return false
	}
	return s.kind == spaceAny || s == req
}

// Overlaps reports whether two registration spaces could serve the same request.
func (s Space) Overlaps(o Space) bool {
	if s.kind == spaceNone || o.kind == spaceNone {
		return false
	}
	return s.kind == spaceAny || o.kind == spaceAny || s == o
}

func (s Space) String() string {
	switch s.kind {
	case spaceAny:
		return "Any"
	case spaceKernel:
		return "Kernel"
	case spacePhysical:
		return "Physical"
	case spaceDTB:
		return "DTB:" + s.dtb.String()
	default:
		return "None"
	}
}

// ParseSpace parses the textual space names used in image files:
// "any", "kernel", "physical" or "dtb:<addr>".
func ParseSpace(s string) (Space, error) {
	switch s {
	case "", "any", "Any":
		return SpaceAny, nil
	case "kernel", "Kernel":
		return SpaceKernel, nil
	case "physical", "Physical", "phys":
		return SpacePhysical, nil
	}
	var dtb uint64
	if _, err := fmt.Sscanf(s, "dtb:0x%x", &dtb); err == nil {
		return SpaceDTB(vmi.Addr(dtb)), nil
	}
	return SpaceNone, fmt.Errorf("unknown memory space %q", s)
}

// Accessor defines the interface for a memory range access.
type Accessor interface {
	// ReadBytes reads up to len(buf) bytes at address and returns the number
	// of bytes delivered. A short count means the range ended.
	ReadBytes(address vmi.Addr, space Space, buf []byte) (int, error)

	// AddrInRange tests if an address is in the inclusive range for this accessor.
	AddrInRange(address vmi.Addr) bool

	// BytesInRange tests number of bytes available from the start address, up to the number of requested bytes.
	BytesInRange(address vmi.Addr, reqBytes int) int

	// OverlapRange tests if supplied range accessor overlaps this range.
	OverlapRange(testAcc Accessor) bool

	// ValidateRange validates the address range.
	ValidateRange() bool

	GetType() Type
	SetSpace(space Space)
	GetSpace() Space

	// InSpace tests if the accessor serves requests in the given space.
	InSpace(space Space) bool

	// GetRange returns the inclusive start and end addresses of this accessor.
	GetRange() (vmi.Addr, vmi.Addr)
}

// BaseAccessor implements the common logic for memory accessors.
type BaseAccessor struct {
	StartAddress vmi.Addr
	EndAddress   vmi.Addr
	AccType      Type
	AccSpace     Space
}

func (b *BaseAccessor) AddrInRange(address vmi.Addr) bool {
	return address >= b.StartAddress && address <= b.EndAddress
}

func (b *BaseAccessor) BytesInRange(address vmi.Addr, reqBytes int) int {
	if !b.AddrInRange(address) || reqBytes <= 0 {
		return 0
	}
	avail := uint64(b.EndAddress) - uint64(address) + 1
	if avail > uint64(reqBytes) {
		return reqBytes
	}
	return int(avail)
}

func (b *BaseAccessor) OverlapRange(testAcc Accessor) bool {
	st, en := testAcc.GetRange()
	return st <= b.EndAddress && b.StartAddress <= en
}

func (b *BaseAccessor) ValidateRange() bool {
	return b.StartAddress <= b.EndAddress
}

func (b *BaseAccessor) GetType() Type {
	return b.AccType
}

func (b *BaseAccessor) SetSpace(space Space) {
	b.AccSpace = space
}

func (b *BaseAccessor) GetSpace() Space {
	return b.AccSpace
}

func (b *BaseAccessor) InSpace(space Space) bool {
	return b.AccSpace.Contains(space)
}

func (b *BaseAccessor) GetRange() (vmi.Addr, vmi.Addr) {
	return b.StartAddress, b.EndAddress
}

func (b *BaseAccessor) String() string {
	return fmt.Sprintf("Range: 0x%X - 0x%X; Type: %s; Space: %s", uint64(b.StartAddress), uint64(b.EndAddress), b.AccType, b.AccSpace)
}

package memacc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

var ErrNoKernelDTB = errors.New("no kernel page-table root configured")

// x86-64 4-level paging (IA-32e) entry layout.
const (
	ptePresent  = 1 << 0
	ptePageSize = 1 << 7

	pteAddrMask = 0x000ffffffffff000
	pte1GMask   = 0x000fffffc0000000
	pte2MMask   = 0x000fffffffe00000

	size4K = 1 << 12
	size2M = 1 << 21
	size1G = 1 << 30
)

// PageWalker translates guest virtual addresses through the x86-64 page
// tables held in SpacePhysical accessors. Kernel context reads use
// KernelDTB; process context reads use the context's own root.
type PageWalker struct {
	Mapper    Mapper
	KernelDTB vmi.Addr
}

func NewPageWalker(m Mapper, kernelDTB vmi.Addr) *PageWalker {
	return &PageWalker{Mapper: m, KernelDTB: kernelDTB}
}

func (w *PageWalker) Translate(ctx vmi.Context, va vmi.Addr) (Space, vmi.Addr, int, error) {
	root, ok := ctx.DTB()
	if !ok {
		if w.KernelDTB == 0 {
			return SpaceNone, 0, 0, ErrNoKernelDTB
		}
		root = w.KernelDTB
	}
	pa, size, err := w.walk(root, va)
	if err != nil {
		return SpaceNone, 0, 0, err
	}
	contig := size - int(uint64(va)&uint64(size-1))
	return SpacePhysical, pa, contig, nil
}

func (w *PageWalker) walk(root vmi.Addr, va vmi.Addr) (vmi.Addr, int, error) {
	v := uint64(va)

	pml4e, err := w.entry(uint64(root)&pteAddrMask, (v>>39)&0x1ff, va, "PML4E")
	if err != nil {
		return 0, 0, err
	}
	pdpte, err := w.entry(pml4e&pteAddrMask, (v>>30)&0x1ff, va, "PDPTE")
	if err != nil {
		return 0, 0, err
	}
	if pdpte&ptePageSize != 0 {
		return vmi.Addr(pdpte&pte1GMask | v&(size1G-1)), size1G, nil
	}
	pde, err := w.entry(pdpte&pteAddrMask, (v>>21)&0x1ff, va, "PDE")
	if err != nil {
		return 0, 0, err
	}
	if pde&ptePageSize != 0 {
		return vmi.Addr(pde&pte2MMask | v&(size2M-1)), size2M, nil
	}
	pte, err := w.entry(pde&pteAddrMask, (v>>12)&0x1ff, va, "PTE")
	if err != nil {
		return 0, 0, err
	}
	return vmi.Addr(pte&pteAddrMask | v&(size4K-1)), size4K, nil
}

func (w *PageWalker) entry(table, index uint64, va vmi.Addr, level string) (uint64, error) {
	var b [8]byte
	pa := vmi.Addr(table + index*8)
	n, err := w.Mapper.ReadTargetMemory(pa, SpacePhysical, b[:])
	if err != nil {
		return 0, fmt.Errorf("%w: %s at %s for %s: %v", vmi.ErrIO, level, pa, va, err)
	}
	if n != len(b) {
		return 0, fmt.Errorf("%w: %s at %s for %s", vmi.ErrNotMapped, level, pa, va)
	}
	e := binary.LittleEndian.Uint64(b[:])
	if e&ptePresent == 0 {
		return 0, fmt.Errorf("%w: %s not present for %s", vmi.ErrNotMapped, level, va)
	}
	return e, nil
}

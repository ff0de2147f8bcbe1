// Package vmitest builds synthetic guest memory and collaborators for tests.
package vmitest

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unicode/utf16"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/memacc"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

type region struct {
	space memacc.Space
	base  vmi.Addr
	mem   []byte
}

// Guest is a set of zero-filled memory regions. Writes outside every
// region panic; reads outside every region fail with vmi.ErrNotMapped.
type Guest struct {
	regions []*region
}

func NewGuest() *Guest {
	return &Guest{}
}

// MapKernel adds a kernel region.
func (g *Guest) MapKernel(base vmi.Addr, size int) {
	g.Map(memacc.SpaceKernel, base, size)
}

// MapProcess adds a region visible only through the page-table root dtb.
func (g *Guest) MapProcess(dtb, base vmi.Addr, size int) {
	g.Map(memacc.SpaceDTB(dtb), base, size)
}

func (g *Guest) Map(space memacc.Space, base vmi.Addr, size int) {
	g.regions = append(g.regions, &region{space: space, base: base, mem: make([]byte, size)})
}

func (g *Guest) slice(ctx vmi.Context, at vmi.Addr, n int) []byte {
	space := memacc.SpaceFor(ctx)
	for _, r := range g.regions {
		if r.space == space && at >= r.base && uint64(at-r.base)+uint64(n) <= uint64(len(r.mem)) {
			off := at - r.base
			return r.mem[off : off+vmi.Addr(n)]
		}
	}
	panic(fmt.Sprintf("vmitest: %d bytes at %s (%s) not mapped", n, at, ctx))
}

func (g *Guest) PutAddr(ctx vmi.Context, at, v vmi.Addr) {
	binary.LittleEndian.PutUint64(g.slice(ctx, at, 8), uint64(v))
}

func (g *Guest) PutUint32(ctx vmi.Context, at vmi.Addr, v uint32) {
	binary.LittleEndian.PutUint32(g.slice(ctx, at, 4), v)
}

func (g *Guest) PutUint16(ctx vmi.Context, at vmi.Addr, v uint16) {
	binary.LittleEndian.PutUint16(g.slice(ctx, at, 2), v)
}

// PutString writes s followed by a NUL byte.
func (g *Guest) PutString(ctx vmi.Context, at vmi.Addr, s string) {
	b := g.slice(ctx, at, len(s)+1)
	copy(b, s)
	b[len(s)] = 0
}

// PutWideString writes s as UTF-16LE, without terminator, and returns its
// length in bytes.
func (g *Guest) PutWideString(ctx vmi.Context, at vmi.Addr, s string) int {
	units := utf16.Encode([]rune(s))
	b := g.slice(ctx, at, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return len(b)
}

// PutUnicodeString writes a counted string descriptor at desc whose buffer
// holds s at buf.
func (g *Guest) PutUnicodeString(ctx vmi.Context, desc, buf vmi.Addr, s string) {
	n := g.PutWideString(ctx, buf, s)
	g.PutUint16(ctx, desc, uint16(n))
	g.PutUint16(ctx, desc+2, uint16(n))
	g.PutAddr(ctx, desc+8, buf)
}

// Link makes a circular list: head -> nodes[0] -> ... -> head. Every link
// field sits at linkOffset inside its node.
func (g *Guest) Link(ctx vmi.Context, head vmi.Addr, linkOffset uint64, nodes ...vmi.Addr) {
	prev := head
	for _, n := range nodes {
		g.PutAddr(ctx, prev, n.Add(linkOffset))
		prev = n.Add(linkOffset)
	}
	g.PutAddr(ctx, prev, head)
}

// Mapper returns a mapper over the current regions. Later writes are seen
// by the returned mapper; later Map calls are not.
func (g *Guest) Mapper() *memacc.GlobalMapper {
	m := memacc.NewGlobalMapper()
	for _, r := range g.regions {
		acc := memacc.NewBufferAccessor(r.base, r.mem)
		acc.SetSpace(r.space)
		if err := m.AddAccessor(acc); err != nil {
			panic(fmt.Sprintf("vmitest: region %s %s: %v", r.space, r.base, err))
		}
	}
	return m
}

// Reader returns a memory reader over the current regions.
func (g *Guest) Reader() *memacc.Reader {
	return memacc.NewReader(g.Mapper())
}

// Symbols is a map-backed symbol resolver.
type Symbols map[string]vmi.Addr

func (s Symbols) ResolveSymbol(name string) (vmi.Addr, error) {
	a, ok := s[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", vmi.ErrUnresolved, name)
	}
	return a, nil
}

// Window records how often it was acquired and released.
type Window struct {
	AcquireErr error
	ReleaseErr error

	mu       sync.Mutex
	acquired int
	released int
}

func (w *Window) Acquire() (vmi.WindowHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.AcquireErr != nil {
		return nil, w.AcquireErr
	}
	w.acquired++
	return w.acquired, nil
}

func (w *Window) Release(h vmi.WindowHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released++
	return w.ReleaseErr
}

// Counts returns the number of successful acquisitions and of releases.
func (w *Window) Counts() (acquired, released int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acquired, w.released
}

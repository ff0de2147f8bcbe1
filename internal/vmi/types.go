// Package vmi holds the types shared by the introspection core and the
// interfaces of its external collaborators (memory, symbols, pause/resume).
package vmi

import "fmt"

// Addr is a guest virtual (or, below the translation layer, physical)
// address. It is never dereferenced by this process.
type Addr uint64

func (a Addr) String() string {
	return fmt.Sprintf("0x%016x", uint64(a))
}

// Add returns a+off. Wrap-around is left to the caller's bounds checks.
func (a Addr) Add(off uint64) Addr {
	return a + Addr(off)
}

// Context selects the page-table mapping a guest address is read through.
// The zero value is the kernel mapping.
type Context struct {
	dtb    Addr
	scoped bool
}

// KernelContext returns the default, unscoped kernel mapping.
func KernelContext() Context {
	return Context{}
}

// ProcessContext returns a context that reads through the page-table
// root dtb (the process DirectoryTableBase / CR3 value).
func ProcessContext(dtb Addr) Context {
	return Context{dtb: dtb, scoped: true}
}

// IsKernel reports whether c is the unscoped kernel mapping.
func (c Context) IsKernel() bool {
	return !c.scoped
}

// DTB returns the page-table root of a process context, and false for the
// kernel context.
func (c Context) DTB() (Addr, bool) {
	return c.dtb, c.scoped
}

func (c Context) String() string {
	if !c.scoped {
		return "kernel"
	}
	return "dtb=" + c.dtb.String()
}

// Default read sizes.
const (
	AddrSize64 = 8
	AddrSize32 = 4

	// PageSize is the translation granule used when splitting reads.
	PageSize = 0x1000
)

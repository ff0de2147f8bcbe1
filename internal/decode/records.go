// Package decode turns list nodes into process, module and thread records.
//
// A failed field read leaves that field absent and the record is still
// returned. A failed structural read (a pointer leading to a sub-list)
// abandons only that sub-list and is reported as a *SubtraversalError.
package decode

import (
	"fmt"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/walk"
)

// Process is one decoded process-list node.
type Process struct {
	ImageName          *string
	PID                *uint32
	Node               vmi.Addr
	DirectoryTableBase *vmi.Addr
}

// Name returns the image name or "" when it could not be read.
func (p Process) Name() string {
	if p.ImageName == nil {
		return ""
	}
	return *p.ImageName
}

// Context returns the address space of the process's user-mode memory,
// or fallback when its page-table root is unknown.
func (p Process) Context(fallback vmi.Context) vmi.Context {
	if p.DirectoryTableBase == nil {
		return fallback
	}
	return vmi.ProcessContext(*p.DirectoryTableBase)
}

// Module is one loaded image of a process. Partial is set when the base
// address or size could not be read.
type Module struct {
	Name    *string
	Base    vmi.Addr
	Size    uint32
	Owner   vmi.Addr
	Partial bool
}

// Thread is one thread of a process.
type Thread struct {
	TID      uint32
	OwnerPID uint32
	Node     vmi.Addr
}

// Limits bounds every read the decoders make.
type Limits struct {
	// MaxNameLen bounds the narrow process image name, in bytes.
	MaxNameLen int
	// MaxModuleNameLen bounds module names, in UTF-16 code units.
	MaxModuleNameLen int
	MaxModules       int
	MaxThreads       int
}

func DefaultLimits() Limits {
	return Limits{
		MaxNameLen:       15,
		MaxModuleNameLen: 260,
		MaxModules:       500,
		MaxThreads:       1000,
	}
}

// orDefault replaces unset (non-positive) limits with the defaults.
func (l Limits) orDefault() Limits {
	d := DefaultLimits()
	if l.MaxNameLen <= 0 {
		l.MaxNameLen = d.MaxNameLen
	}
	if l.MaxModuleNameLen <= 0 {
		l.MaxModuleNameLen = d.MaxModuleNameLen
	}
	if l.MaxModules <= 0 {
		l.MaxModules = d.MaxModules
	}
	if l.MaxThreads <= 0 {
		l.MaxThreads = d.MaxThreads
	}
	return l
}

// List names the sub-list a SubtraversalError belongs to.
type List int

const (
	ListModules List = iota
	ListThreads
)

func (l List) String() string {
	switch l {
	case ListModules:
		return "modules"
	case ListThreads:
		return "threads"
	default:
		return fmt.Sprintf("List(%d)", int(l))
	}
}

// SubtraversalError reports a sub-list that was abandoned or cut short.
// Records decoded before the failure are still returned alongside it.
type SubtraversalError struct {
	Owner vmi.Addr
	List  List
	// Stage is the structure whose read failed, or "walk" when the list
	// walk itself ended early.
	Stage string
	Stop  walk.StopReason
	Err   error
}

func (e *SubtraversalError) Error() string {
	msg := fmt.Sprintf("%s of process %s: %s", e.List, e.Owner, e.Stage)
	if e.Stop != walk.StopNone {
		msg += " " + e.Stop.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubtraversalError) Unwrap() error {
	return e.Err
}

// walkFault converts a truncated walk into a SubtraversalError.
func walkFault(owner vmi.Addr, list List, c *walk.Cursor) error {
	if !c.Stop().Truncated() {
		return nil
	}
	return &SubtraversalError{Owner: owner, List: list, Stage: "walk", Stop: c.Stop(), Err: c.Err()}
}

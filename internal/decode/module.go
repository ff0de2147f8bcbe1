package decode

import (
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/offsets"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/walk"
)

// ReadModules walks the loader's in-load-order module list of proc.
//
// The environment block pointer is read in ctx; everything behind it is
// user-mode memory and is read in the process's own context when its
// page-table root is known. A process without an environment block (the
// kernel's own processes) has no modules and no fault.
func ReadModules(r vmi.MemoryReader, ctx vmi.Context, proc Process, tbl offsets.Table, lim Limits) ([]Module, error) {
	lim = lim.orDefault()
	fault := func(stage string, err error) error {
		return &SubtraversalError{Owner: proc.Node, List: ListModules, Stage: stage, Err: err}
	}

	peb, err := r.ReadAddr(ctx, proc.Node.Add(tbl.Offset(offsets.ProcessEnvironmentBlock)))
	if err != nil {
		return nil, fault("environment block", err)
	}
	if peb == 0 {
		return nil, nil
	}

	uctx := proc.Context(ctx)
	ldr, err := r.ReadAddr(uctx, peb.Add(tbl.Offset(offsets.PebLoaderData)))
	if err != nil {
		return nil, fault("loader data", err)
	}
	if ldr == 0 {
		return nil, fault("loader data", vmi.ErrNullPointer)
	}

	head := ldr.Add(tbl.Offset(offsets.LoaderModuleListHead))
	c, err := walk.New(r, uctx, head, tbl.Offset(offsets.ModuleListLink), lim.MaxModules)
	if err != nil {
		return nil, fault("walk", err)
	}

	var mods []Module
	for node := range c.All() {
		mods = append(mods, decodeModule(r, uctx, node, proc.Node, tbl, lim))
	}
	return mods, walkFault(proc.Node, ListModules, c)
}

func decodeModule(r vmi.MemoryReader, ctx vmi.Context, node, owner vmi.Addr, tbl offsets.Table, lim Limits) Module {
	m := Module{Owner: owner}

	base, err := r.ReadAddr(ctx, node.Add(tbl.Offset(offsets.ModuleBaseAddress)))
	if err != nil {
		m.Partial = true
	}
	m.Base = base

	size, err := r.ReadUint32(ctx, node.Add(tbl.Offset(offsets.ModuleImageSize)))
	if err != nil {
		m.Partial = true
	}
	m.Size = size

	if name, ok := readUnicodeString(r, ctx, node.Add(tbl.Offset(offsets.ModuleBaseName)), tbl, lim.MaxModuleNameLen); ok {
		m.Name = &name
	}
	return m
}

// readUnicodeString reads a counted UTF-16 string descriptor
// {Length uint16 (bytes), MaximumLength uint16, Buffer pointer}.
func readUnicodeString(r vmi.MemoryReader, ctx vmi.Context, at vmi.Addr, tbl offsets.Table, maxUnits int) (string, bool) {
	length, err := r.ReadUint16(ctx, at)
	if err != nil || length < 2 {
		return "", false
	}
	bufOff, _ := tbl.Lookup(offsets.UnicodeStringBuffer)
	buf, err := r.ReadAddr(ctx, at.Add(bufOff))
	if err != nil || buf == 0 {
		return "", false
	}
	units := min(int(length)/2, maxUnits)
	s, err := r.ReadWideString(ctx, buf, units)
	if err != nil {
		return "", false
	}
	return s, true
}

package decode

import (
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/offsets"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

// ReadProcess reads the image name, process id and page-table root of
// the process structure at node. It never fails; unreadable fields are nil.
func ReadProcess(r vmi.MemoryReader, ctx vmi.Context, node vmi.Addr, tbl offsets.Table, lim Limits) Process {
	lim = lim.orDefault()
	p := Process{Node: node}

	if name, ok := readName(r, ctx, node, tbl, lim); ok {
		p.ImageName = &name
	}
	if pid, ok := readPID(r, ctx, node, tbl); ok {
		p.PID = &pid
	}
	if off, ok := tbl.Lookup(offsets.ProcessDirectoryTableBase); ok {
		if dtb, err := r.ReadAddr(ctx, node.Add(off)); err == nil && dtb != 0 {
			p.DirectoryTableBase = &dtb
		}
	}
	return p
}

func readName(r vmi.MemoryReader, ctx vmi.Context, node vmi.Addr, tbl offsets.Table, lim Limits) (string, bool) {
	name, err := r.ReadNarrowString(ctx, node.Add(tbl.Offset(offsets.ProcessImageName)), lim.MaxNameLen)
	if err == nil {
		return name, true
	}
	off, ok := tbl.Fallback(offsets.ProcessImageName)
	if !ok {
		return "", false
	}
	name, err = r.ReadNarrowString(ctx, node.Add(off), lim.MaxNameLen)
	return name, err == nil
}

func readPID(r vmi.MemoryReader, ctx vmi.Context, node vmi.Addr, tbl offsets.Table) (uint32, bool) {
	pid, err := r.ReadUint32(ctx, node.Add(tbl.Offset(offsets.ProcessId)))
	if err == nil {
		return pid, true
	}
	off, ok := tbl.Fallback(offsets.ProcessId)
	if !ok {
		return 0, false
	}
	pid, err = r.ReadUint32(ctx, node.Add(off))
	return pid, err == nil
}

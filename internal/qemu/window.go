package qemu

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/memacc"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

// Signaller stops and continues a process.
type Signaller interface {
	SuspendWithContext(ctx context.Context) error
	ResumeWithContext(ctx context.Context) error
}

// Pauser is a consistency window that stops the QEMU process for the
// duration of a build. The page cache is dropped on both edges so no read
// inside the window is served from a running guest.
type Pauser struct {
	proc   Signaller
	mapper memacc.Mapper
}

// NewPauser pauses pid. mapper may be nil.
func NewPauser(pid int32, mapper memacc.Mapper) (*Pauser, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	return &Pauser{proc: p, mapper: mapper}, nil
}

func (p *Pauser) invalidate() {
	if p.mapper != nil {
		p.mapper.InvalidateMemAccCache()
	}
}

func (p *Pauser) Acquire() (vmi.WindowHandle, error) {
	if err := p.proc.SuspendWithContext(context.Background()); err != nil {
		return nil, fmt.Errorf("suspending qemu: %w", err)
	}
	p.invalidate()
	return p, nil
}

func (p *Pauser) Release(vmi.WindowHandle) error {
	p.invalidate()
	if err := p.proc.ResumeWithContext(context.Background()); err != nil {
		return fmt.Errorf("resuming qemu: %w", err)
	}
	return nil
}

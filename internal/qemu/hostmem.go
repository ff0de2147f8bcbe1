package qemu

import (
	"fmt"
	"io"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/memacc"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

// HostMemory reads the virtual memory of a host process.
type HostMemory interface {
	ReadAt(buf []byte, hostAddr uint64) (int, error)
	io.Closer
}

// ramRegion maps guest physical memory onto the host mapping that backs it.
type ramRegion struct {
	mem       HostMemory
	guestBase vmi.Addr
	hostBase  uint64
}

func (r *ramRegion) read(_ any, address vmi.Addr, _ memacc.Space, buf []byte) (int, error) {
	host := r.hostBase + uint64(address-r.guestBase)
	n, err := r.mem.ReadAt(buf, host)
	if err != nil {
		return n, fmt.Errorf("%w: host %#x: %v", vmi.ErrIO, host, err)
	}
	return n, nil
}

// NewRAMAccessor serves guest physical addresses [guestBase, guestBase+size)
// from host addresses starting at hostBase.
func NewRAMAccessor(mem HostMemory, guestBase vmi.Addr, hostBase, size uint64) *memacc.CallbackAccessor {
	acc := memacc.NewCallbackAccessor(guestBase, guestBase+vmi.Addr(size)-1, memacc.SpacePhysical)
	r := &ramRegion{mem: mem, guestBase: guestBase, hostBase: hostBase}
	acc.SetReadFn(r.read, nil)
	return acc
}

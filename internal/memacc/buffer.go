package memacc

import (
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

// BufferAccessor represents a memory accessor for a memory buffer.
type BufferAccessor struct {
	BaseAccessor
	Buffer []byte
}

// NewBufferAccessor creates a new buffer accessor serving any space.
func NewBufferAccessor(startAddr vmi.Addr, buffer []byte) *BufferAccessor {
	b := &BufferAccessor{}
	b.AccType = TypeBufPtr
	b.AccSpace = SpaceAny
	b.InitAccessor(startAddr, buffer)
	return b
}

// ReadBytes implements the Accessor interface.
func (b *BufferAccessor) ReadBytes(address vmi.Addr, space Space, buf []byte) (int, error) {
	if !b.AddrInRange(address) || !b.InSpace(space) {
		return 0, nil
	}
	n := b.BytesInRange(address, len(buf))
	offset := address - b.StartAddress
	copy(buf, b.Buffer[offset:offset+vmi.Addr(n)])
	return n, nil
}

// InitAccessor re-initializes the accessor with new values.
func (b *BufferAccessor) InitAccessor(startAddr vmi.Addr, buffer []byte) {
	b.StartAddress = startAddr
	b.EndAddress = startAddr + vmi.Addr(len(buffer)) - 1
	b.Buffer = buffer
}

func (b *BufferAccessor) ValidateRange() bool {
	return len(b.Buffer) > 0 && b.BaseAccessor.ValidateRange()
}

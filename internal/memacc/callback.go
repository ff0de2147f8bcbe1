package memacc

import (
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

// ReadFn is the callback used by CallbackAccessor. It fills buf from the
// live target and returns the number of bytes delivered, which may be short
// when the request leaves the range the callback was registered for.
type ReadFn func(ctx any, address vmi.Addr, space Space, buf []byte) (int, error)

// CallbackAccessor forwards reads to a live target.
type CallbackAccessor struct {
	BaseAccessor
	Fn  ReadFn
	Ctx any
}

// NewCallbackAccessor creates a new callback accessor.
func NewCallbackAccessor(startAddr vmi.Addr, endAddr vmi.Addr, space Space) *CallbackAccessor {
	return &CallbackAccessor{
		BaseAccessor: BaseAccessor{
			StartAddress: startAddr,
			EndAddress:   endAddr,
			AccType:      TypeCBIf,
			AccSpace:     space,
		},
	}
}

// ReadBytes implements the Accessor interface.
func (c *CallbackAccessor) ReadBytes(address vmi.Addr, space Space, buf []byte) (int, error) {
	if !c.AddrInRange(address) || !c.InSpace(space) || c.Fn == nil {
		return 0, nil
	}
	n := c.BytesInRange(address, len(buf))
	return c.Fn(c.Ctx, address, space, buf[:n])
}

// SetReadFn sets the callback function.
func (c *CallbackAccessor) SetReadFn(fn ReadFn, ctx any) {
	c.Fn = fn
	c.Ctx = ctx
}

package vmi

import "testing"

func TestContext(t *testing.T) {
	k := KernelContext()
	if !k.IsKernel() {
		t.Errorf("KernelContext().IsKernel() = false, want true")
	}
	if _, ok := k.DTB(); ok {
		t.Errorf("KernelContext().DTB() ok = true, want false")
	}
	if k != (Context{}) {
		t.Errorf("KernelContext() is not the zero Context")
	}

	p := ProcessContext(0x1aa000)
	if p.IsKernel() {
		t.Errorf("ProcessContext().IsKernel() = true, want false")
	}
	dtb, ok := p.DTB()
	if !ok || dtb != 0x1aa000 {
		t.Errorf("ProcessContext().DTB() = %v, %v, want 0x1aa000, true", dtb, ok)
	}

	// A process context with a zero root is still scoped.
	if ProcessContext(0).IsKernel() {
		t.Errorf("ProcessContext(0).IsKernel() = true, want false")
	}
}

func TestAddrString(t *testing.T) {
	tests := []struct {
		addr Addr
		want string
	}{
		{0, "0x0000000000000000"},
		{0xfffff80140000000, "0xfffff80140000000"},
	}
	for _, tt := range tests {
		if got := tt.addr.String(); got != tt.want {
			t.Errorf("Addr(%x).String() = %v, want %v", uint64(tt.addr), got, tt.want)
		}
	}
	if got := Addr(0x1000).Add(0x2e8); got != 0x12e8 {
		t.Errorf("Add() = %v, want 0x12e8", got)
	}
}

package vmi

// MemoryReader is the memory access port. Implementations must be safe to
// reuse across sequential snapshot builds; every call may block on the
// hypervisor and is expected to either complete or fail quickly.
type MemoryReader interface {
	// ReadBytes reads exactly n bytes at addr or fails.
	ReadBytes(ctx Context, addr Addr, n int) ([]byte, error)

	ReadUint16(ctx Context, addr Addr) (uint16, error)
	ReadUint32(ctx Context, addr Addr) (uint32, error)

	// ReadAddr reads a guest pointer-sized value.
	ReadAddr(ctx Context, addr Addr) (Addr, error)

	// ReadNarrowString reads a NUL-terminated single-byte string of at most
	// maxLen bytes. Hitting maxLen without a terminator is not an error.
	ReadNarrowString(ctx Context, addr Addr, maxLen int) (string, error)

	// ReadWideString reads at most maxLen UTF-16LE code units, stopping at a
	// NUL unit, and returns the text as UTF-8.
	ReadWideString(ctx Context, addr Addr, maxLen int) (string, error)
}

// SymbolResolver resolves kernel export names to virtual addresses.
type SymbolResolver interface {
	ResolveSymbol(name string) (Addr, error)
}

// WindowHandle identifies one acquired consistency window.
type WindowHandle any

// ConsistencyWindow pauses the target so related reads observe one memory
// state. At most one window per target is active at a time.
type ConsistencyWindow interface {
	Acquire() (WindowHandle, error)
	Release(h WindowHandle) error
}

package vmi

import "errors"

// Port failures. Adapters wrap these so callers can match with errors.Is.
var (
	// ErrNotMapped is returned when no memory backs the requested address
	// in the requested context.
	ErrNotMapped = errors.New("address not mapped")

	// ErrIO is returned when the backing store failed to deliver the data.
	ErrIO = errors.New("memory read i/o error")

	// ErrShortRead is returned when fewer bytes than requested were available.
	ErrShortRead = errors.New("short memory read")

	// ErrUnresolved is returned by a SymbolResolver for unknown names.
	ErrUnresolved = errors.New("symbol unresolved")

	// ErrNullPointer marks a structural pointer that read as zero.
	ErrNullPointer = errors.New("null pointer")
)

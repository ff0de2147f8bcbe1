package offsets

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingField = errors.New("required offset missing")
	ErrNoFallback   = errors.New("field does not take a fallback offset")
)

// DefaultUnicodeStringBuffer is the offset of Buffer inside a 64-bit
// UNICODE_STRING {Length, MaximumLength, Buffer}.
const DefaultUnicodeStringBuffer = 8

// Table maps fields to byte offsets within their containing structure.
// A Table is immutable once built.
type Table struct {
	name      string
	offsets   [numFields]uint64
	present   [numFields]bool
	fallbacks map[Field]uint64
}

// Spec is the mutable description New builds a Table from.
type Spec struct {
	Name      string
	Offsets   map[Field]uint64
	Fallbacks map[Field]uint64
}

// New validates spec and returns the table. All required fields must be
// present; fallbacks are accepted for ProcessImageName and ProcessId only.
func New(spec Spec) (Table, error) {
	t := Table{name: spec.Name}
	for f, off := range spec.Offsets {
		if f < 0 || f >= numFields {
			return Table{}, fmt.Errorf("unknown offset field %d", int(f))
		}
		t.offsets[f] = off
		t.present[f] = true
	}

	var missing []string
	for f := Field(0); int(f) < NumRequired; f++ {
		if !t.present[f] {
			missing = append(missing, f.String())
		}
	}
	if len(missing) > 0 {
		return Table{}, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}

	if len(spec.Fallbacks) > 0 {
		t.fallbacks = make(map[Field]uint64, len(spec.Fallbacks))
		for f, off := range spec.Fallbacks {
			if f != ProcessImageName && f != ProcessId {
				return Table{}, fmt.Errorf("%w: %s", ErrNoFallback, f)
			}
			t.fallbacks[f] = off
		}
	}
	return t, nil
}

// MustNew is New for tables known to be valid. It panics on error.
func MustNew(spec Spec) Table {
	t, err := New(spec)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the profile name the table was built with.
func (t Table) Name() string {
	return t.name
}

// Offset returns the offset of a required field.
func (t Table) Offset(f Field) uint64 {
	if f < 0 || f >= numFields {
		return 0
	}
	return t.offsets[f]
}

// Lookup returns the offset of f and whether the table defines it.
// UnicodeStringBuffer falls back to DefaultUnicodeStringBuffer.
func (t Table) Lookup(f Field) (uint64, bool) {
	if f < 0 || f >= numFields {
		return 0, false
	}
	if !t.present[f] && f == UnicodeStringBuffer {
		return DefaultUnicodeStringBuffer, true
	}
	return t.offsets[f], t.present[f]
}

// Fallback returns the alternate offset tried when reading f at its
// primary offset fails.
func (t Table) Fallback(f Field) (uint64, bool) {
	off, ok := t.fallbacks[f]
	return off, ok
}

// Valid reports whether the table went through New.
func (t Table) Valid() bool {
	for f := Field(0); int(f) < NumRequired; f++ {
		if !t.present[f] {
			return false
		}
	}
	return true
}

// Spec returns a copy of the table's definition.
func (t Table) Spec() Spec {
	s := Spec{Name: t.name, Offsets: make(map[Field]uint64)}
	for f := range numFields {
		if t.present[f] {
			s.Offsets[f] = t.offsets[f]
		}
	}
	if len(t.fallbacks) > 0 {
		s.Fallbacks = make(map[Field]uint64, len(t.fallbacks))
		for f, off := range t.fallbacks {
			s.Fallbacks[f] = off
		}
	}
	return s
}

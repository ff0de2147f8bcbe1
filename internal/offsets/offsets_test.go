package offsets

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func requiredSpec() Spec {
	s := Spec{Name: "test", Offsets: map[Field]uint64{}}
	for f := Field(0); int(f) < NumRequired; f++ {
		s.Offsets[f] = uint64(f) * 8
	}
	return s
}

func TestFieldString(t *testing.T) {
	tests := []struct {
		field    Field
		expected string
	}{
		{ProcessImageName, "ProcessImageName"},
		{ThreadOwnerProcessId, "ThreadOwnerProcessId"},
		{UnicodeStringBuffer, "UnicodeStringBuffer"},
		{Field(99), "Field(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.field.String(); got != tt.expected {
				t.Errorf("Field.String() = %v, want %v", got, tt.expected)
			}
			if f, ok := ParseField(tt.expected); ok && f != tt.field {
				t.Errorf("ParseField(%q) = %v, want %v", tt.expected, f, tt.field)
			}
		})
	}

	if NumRequired != 14 {
		t.Errorf("NumRequired = %d, want 14", NumRequired)
	}
	if ProcessDirectoryTableBase.Required() {
		t.Error("ProcessDirectoryTableBase should be optional")
	}
}

func TestNewRejectsMissing(t *testing.T) {
	for f := Field(0); int(f) < NumRequired; f++ {
		t.Run(f.String(), func(t *testing.T) {
			spec := requiredSpec()
			delete(spec.Offsets, f)
			_, err := New(spec)
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("New() without %s error = %v, want %v", f, err, ErrMissingField)
			}
			if !strings.Contains(err.Error(), f.String()) {
				t.Errorf("error %q should name %s", err, f)
			}
		})
	}
}

func TestNewRejectsBadFallback(t *testing.T) {
	spec := requiredSpec()
	spec.Fallbacks = map[Field]uint64{ThreadListLink: 0x10}
	if _, err := New(spec); !errors.Is(err, ErrNoFallback) {
		t.Errorf("New() error = %v, want %v", err, ErrNoFallback)
	}
}

func TestTableLookup(t *testing.T) {
	tbl, err := New(requiredSpec())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := tbl.Offset(ModuleBaseName); got != uint64(ModuleBaseName)*8 {
		t.Errorf("Offset(ModuleBaseName) = %#x, want %#x", got, uint64(ModuleBaseName)*8)
	}
	if _, ok := tbl.Lookup(ProcessDirectoryTableBase); ok {
		t.Error("Lookup(ProcessDirectoryTableBase) should be absent")
	}
	if got, ok := tbl.Lookup(UnicodeStringBuffer); !ok || got != DefaultUnicodeStringBuffer {
		t.Errorf("Lookup(UnicodeStringBuffer) = %#x, %v, want %#x, true", got, ok, DefaultUnicodeStringBuffer)
	}
	if _, ok := tbl.Fallback(ProcessImageName); ok {
		t.Error("Fallback(ProcessImageName) should be absent")
	}
	if !tbl.Valid() {
		t.Error("Valid() = false for a built table")
	}
	if (Table{}).Valid() {
		t.Error("Valid() = true for the zero table")
	}
}

func TestBuiltinWin10(t *testing.T) {
	tbl, err := Lookup("win10-x64")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	checks := map[Field]uint64{
		ProcessImageName:     0x5a8,
		ProcessId:            0x2e0,
		ProcessListLink:      0x2e8,
		ThreadListLink:       0x6f8,
		ThreadUniqueId:       0x648,
		ThreadOwnerProcessId: 0x640,
	}
	for f, want := range checks {
		if got := tbl.Offset(f); got != want {
			t.Errorf("Offset(%s) = %#x, want %#x", f, got, want)
		}
	}
	if off, ok := tbl.Fallback(ProcessImageName); !ok || off != 0x450 {
		t.Errorf("Fallback(ProcessImageName) = %#x, %v, want 0x450, true", off, ok)
	}

	if _, err := Lookup("win95"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("Lookup(win95) error = %v, want %v", err, ErrUnknownProfile)
	}
	if diff := cmp.Diff([]string{"win10-x64"}, Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

const profileYAML = `name: lab-guest
offsets:
  ProcessImageName: 0x5a8
  ProcessId: 0x440
  ProcessListLink: 0x448
  ProcessEnvironmentBlock: 0x550
  ThreadListHead: 0x5e0
  PebLoaderData: 0x18
  LoaderModuleListHead: 0x10
  ModuleListLink: 0
  ModuleBaseName: 0x58
  ModuleBaseAddress: 0x30
  ModuleImageSize: 0x40
  ThreadListLink: 0x4e8
  ThreadUniqueId: 0x480
  ThreadOwnerProcessId: 0x478
fallbacks:
  ProcessId: 0x2e0
---
name: broken
offsets:
  ProcessImageName: 0x5a8
`

func TestRegistryLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/profiles/lab.yaml", []byte(profileYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry()
	_, err := reg.LoadFile(fs, "/profiles/lab.yaml")
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("LoadFile() error = %v, want %v", err, ErrMissingField)
	}
	if _, err := reg.Lookup("lab-guest"); err == nil {
		t.Error("a failed load should not register any profile")
	}

	good := profileYAML[:strings.Index(profileYAML, "---")]
	if err := afero.WriteFile(fs, "/profiles/lab.yaml", []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	names, err := reg.LoadFile(fs, "/profiles/lab.yaml")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if diff := cmp.Diff([]string{"lab-guest"}, names); diff != "" {
		t.Errorf("LoadFile() names mismatch (-want +got):\n%s", diff)
	}

	tbl, err := reg.Lookup("lab-guest")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got := tbl.Offset(ProcessListLink); got != 0x448 {
		t.Errorf("Offset(ProcessListLink) = %#x, want 0x448", got)
	}
	if got, ok := tbl.Fallback(ProcessId); !ok || got != 0x2e0 {
		t.Errorf("Fallback(ProcessId) = %#x, %v, want 0x2e0, true", got, ok)
	}
	if diff := cmp.Diff([]string{"lab-guest", "win10-x64"}, reg.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeUnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("name: x\noffsets:\n  Bogus: 1\n"))
	if err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Errorf("Decode() error = %v, want unknown field Bogus", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Win10x64); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	tables, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("Decode() returned %d tables, want 1", len(tables))
	}
	if diff := cmp.Diff(Win10x64.Spec(), tables[0].Spec()); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

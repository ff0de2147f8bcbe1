package image

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/golang/snappy"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/inventory"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/memacc"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/offsets"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

const (
	kernelBase = 0xfffff80000000000
	listHead   = kernelBase + 0x100
	sysNode    = kernelBase + 0x1000
	smssNode   = kernelBase + 0x2000
)

const imageINI = `; captured from lab guest
[image]
version = 1.0
description = two processes
profile = win10-x64

[symbols]
PsActiveProcessHead = 0xfffff80000000100
PsInitialSystemProcess = 0xfffff80000001000

[dump0]
file = kernel.bin.sz
address = 0xfffff80000000000
space = kernel
compression = snappy

[dump1]
file = user.bin
address = 0x10000
offset = 0x10
length = 0x20
space = dtb:0x1aa000
`

// kernelDump lays out a two-process list with the win10-x64 offsets.
func kernelDump() []byte {
	tbl := offsets.Win10x64
	mem := make([]byte, 0x4000)
	put := func(at uint64, v uint64) {
		binary.LittleEndian.PutUint64(mem[at-kernelBase:], v)
	}
	link := tbl.Offset(offsets.ProcessListLink)
	threads := tbl.Offset(offsets.ThreadListHead)
	for _, p := range []struct {
		node uint64
		name string
		pid  uint32
	}{
		{sysNode, "System", 4},
		{smssNode, "smss.exe", 356},
	} {
		copy(mem[p.node-kernelBase+tbl.Offset(offsets.ProcessImageName):], p.name)
		binary.LittleEndian.PutUint32(mem[p.node-kernelBase+tbl.Offset(offsets.ProcessId):], p.pid)
		put(p.node+threads, p.node+threads)
	}
	put(listHead, sysNode+link)
	put(sysNode+link, smssNode+link)
	put(smssNode+link, listHead)
	return mem
}

func newFs(t *testing.T, ini string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	user := make([]byte, 0x40)
	for i := range user {
		user[i] = byte(i)
	}
	files := map[string][]byte{
		"/img/image.ini":     []byte(ini),
		"/img/kernel.bin.sz": snappy.Encode(nil, kernelDump()),
		"/img/user.bin":      user,
	}
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fs, name, data, 0o644))
	}
	return fs
}

func TestParseImage(t *testing.T) {
	parsed, err := ParseImage(strings.NewReader(imageINI))
	require.NoError(t, err)

	assert.Equal(t, "1.0", parsed.Info.Version)
	assert.Equal(t, "win10-x64", parsed.Info.Profile)
	assert.Equal(t, 64, parsed.Info.AddressWidth)
	assert.Equal(t, vmi.Addr(listHead), parsed.Symbols["PsActiveProcessHead"])
	require.Len(t, parsed.Dumps, 2)
	assert.Equal(t, DumpDef{
		Section:     "dump0",
		Address:     kernelBase,
		Path:        "kernel.bin.sz",
		Space:       "kernel",
		Compression: CompressionSnappy,
	}, parsed.Dumps[0])
	assert.Equal(t, uint64(0x10), parsed.Dumps[1].Offset)
	assert.Equal(t, uint64(0x20), parsed.Dumps[1].Length)
}

func TestParseImageErrors(t *testing.T) {
	tests := []struct {
		name string
		ini  string
		want string
	}{
		{"NoImageSection", "[symbols]\nA = 1\n", "no [image] section"},
		{"BadWidth", "[image]\naddress_width = 48\n", "address_width"},
		{"BadSymbol", "[image]\n[symbols]\nA = zz\n", "symbol A"},
		{"DumpWithoutFile", "[image]\n[dump0]\naddress = 0x1000\n", "has no file"},
		{"DumpWithoutAddress", "[image]\n[dump0]\nfile = a.bin\n", "has no address"},
		{"BadCompression", "[image]\n[dump0]\nfile = a.bin\naddress = 0\ncompression = lz4\n", "lz4"},
		{"BadLength", "[image]\n[dump0]\nfile = a.bin\naddress = 0\nlength = -1\n", "length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseImage(strings.NewReader(tt.ini))
			require.ErrorIs(t, err, ErrBadImage)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOpen(t *testing.T) {
	img, err := NewReader(newFs(t, imageINI)).Open("/img")
	require.NoError(t, err)
	defer img.Close()

	head, err := img.Symbols.ResolveSymbol("PsActiveProcessHead")
	require.NoError(t, err)
	assert.Equal(t, vmi.Addr(listHead), head)

	name, err := img.Reader.ReadNarrowString(vmi.KernelContext(), vmi.Addr(sysNode+offsets.Win10x64.Offset(offsets.ProcessImageName)), 15)
	require.NoError(t, err)
	assert.Equal(t, "System", name)

	// dump1 maps user.bin[0x10:0x30] at 0x10000 in one process only.
	b, err := img.Reader.ReadBytes(vmi.ProcessContext(0x1aa000), 0x10000, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x11, 0x12, 0x13}, b)
	_, err = img.Reader.ReadBytes(vmi.ProcessContext(0x1aa000), 0x10020, 1)
	assert.ErrorIs(t, err, vmi.ErrNotMapped)
	_, err = img.Reader.ReadBytes(vmi.KernelContext(), 0x10000, 4)
	assert.ErrorIs(t, err, vmi.ErrNotMapped)

	h, err := img.Acquire()
	require.NoError(t, err)
	assert.NoError(t, img.Release(h))
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name    string
		ini     string
		wantErr error
	}{
		{"NoDumps", "[image]\nversion = 1.0\n", ErrNoDumps},
		{"MissingFile", "[image]\n[dump0]\nfile = gone.bin\naddress = 0\n", memacc.ErrFileAccess},
		{"RangePastEnd", "[image]\n[dump0]\nfile = user.bin\naddress = 0\nlength = 0x1000\n", memacc.ErrFileRange},
		{"SnappyRangePastEnd", "[image]\n[dump0]\nfile = kernel.bin.sz\naddress = 0\ncompression = snappy\noffset = 0x10000\n", memacc.ErrFileRange},
		{"Overlap", "[image]\n[dump0]\nfile = user.bin\naddress = 0\n[dump1]\nfile = user.bin\naddress = 0x20\n", memacc.ErrMemAccOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(newFs(t, tt.ini)).Open("/img")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := NewReader(afero.NewMemMapFs()).Open("/missing")
	assert.Error(t, err)
}

func TestOpenCorruptSnappy(t *testing.T) {
	fs := newFs(t, "[image]\n[dump0]\nfile = bad.sz\naddress = 0\ncompression = snappy\n")
	require.NoError(t, afero.WriteFile(fs, "/img/bad.sz", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, 0o644))
	_, err := NewReader(fs).Open("/img")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snappy")
}

func TestImageInventory(t *testing.T) {
	img, err := NewReader(newFs(t, imageINI)).Open("/img")
	require.NoError(t, err)
	defer img.Close()

	tbl, err := offsets.Lookup(img.Info.Profile)
	require.NoError(t, err)

	snap, err := inventory.NewBuilder(img.Reader, img.Symbols, img).Build(context.Background(), tbl, inventory.DefaultBounds())
	require.NoError(t, err)

	var names []string
	for _, p := range snap.Processes {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"System", "smss.exe"}, names)
	assert.True(t, snap.CaptureConsistent)
	assert.True(t, snap.Complete(), "faults: %v", errors.Join(snap.Faults...))
}

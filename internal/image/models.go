package image

import "github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"

// Info stores the [image] section of image.ini
type Info struct {
	Version     string
	Description string
	// Profile names the offset profile the image was captured for.
	Profile string
	// KernelDTB is the kernel page-table root. When set, dumps hold
	// physical memory and virtual reads are translated through it.
	KernelDTB    vmi.Addr
	AddressWidth int
}

// DumpDef stores a parsed [dumpN] section
type DumpDef struct {
	Section     string
	Address     vmi.Addr
	Path        string
	Length      uint64
	Offset      uint64
	Space       string
	Compression string
}

// Parsed is the whole of image.ini
type Parsed struct {
	Info    Info
	Symbols map[string]vmi.Addr
	Dumps   []DumpDef
}

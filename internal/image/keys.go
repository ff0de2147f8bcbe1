package image

const (
	// image.ini keys
	ImageINIFilename = "image.ini"

	ImageSectionName = "image"
	VersionKey       = "version"
	DescriptionKey   = "description"
	ProfileKey       = "profile"
	KernelDTBKey     = "kernel_dtb"
	AddressWidthKey  = "address_width"

	SymbolsSectionName = "symbols"

	DumpFileSectionPrefix = "dump"
	DumpAddressKey        = "address"
	DumpLengthKey         = "length"
	DumpOffsetKey         = "offset"
	DumpFileKey           = "file"
	DumpSpaceKey          = "space"
	DumpCompressionKey    = "compression"

	// Dump compression
	CompressionNone   = "none"
	CompressionSnappy = "snappy"

	CurrentVersion = "1.0"
)

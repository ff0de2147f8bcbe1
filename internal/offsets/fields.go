package offsets

import "fmt"

// Field names one structure member the decoders read.
type Field int

const (
	ProcessImageName Field = iota
	ProcessId
	ProcessListLink
	ProcessEnvironmentBlock
	ThreadListHead
	PebLoaderData
	LoaderModuleListHead
	ModuleListLink
	ModuleBaseName
	ModuleBaseAddress
	ModuleImageSize
	ThreadListLink
	ThreadUniqueId
	ThreadOwnerProcessId

	// Optional fields.
	ProcessDirectoryTableBase
	UnicodeStringBuffer

	numFields
)

// NumRequired is the number of fields every table must define.
const NumRequired = int(ThreadOwnerProcessId) + 1

var fieldNames = [numFields]string{
	ProcessImageName:          "ProcessImageName",
	ProcessId:                 "ProcessId",
	ProcessListLink:           "ProcessListLink",
	ProcessEnvironmentBlock:   "ProcessEnvironmentBlock",
	ThreadListHead:            "ThreadListHead",
	PebLoaderData:             "PebLoaderData",
	LoaderModuleListHead:      "LoaderModuleListHead",
	ModuleListLink:            "ModuleListLink",
	ModuleBaseName:            "ModuleBaseName",
	ModuleBaseAddress:         "ModuleBaseAddress",
	ModuleImageSize:           "ModuleImageSize",
	ThreadListLink:            "ThreadListLink",
	ThreadUniqueId:            "ThreadUniqueId",
	ThreadOwnerProcessId:      "ThreadOwnerProcessId",
	ProcessDirectoryTableBase: "ProcessDirectoryTableBase",
	UnicodeStringBuffer:       "UnicodeStringBuffer",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Required reports whether a table must define f.
func (f Field) Required() bool {
	return f >= 0 && int(f) < NumRequired
}

// ParseField maps a field name back to its Field.
func ParseField(name string) (Field, bool) {
	for f, n := range fieldNames {
		if n == name {
			return Field(f), true
		}
	}
	return 0, false
}

// AllFields returns every known field, required ones first.
func AllFields() []Field {
	out := make([]Field, numFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

package offsets

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var ErrUnknownProfile = errors.New("unknown offset profile")

// Win10x64 is the Windows 10 x64 layout: EPROCESS, ETHREAD, PEB,
// PEB_LDR_DATA and LDR_DATA_TABLE_ENTRY offsets.
var Win10x64 = MustNew(Spec{
	Name: "win10-x64",
	Offsets: map[Field]uint64{
		ProcessImageName:          0x5a8,
		ProcessId:                 0x2e0,
		ProcessListLink:           0x2e8,
		ProcessEnvironmentBlock:   0x3f8,
		ThreadListHead:            0x5e0,
		PebLoaderData:             0x18,
		LoaderModuleListHead:      0x10,
		ModuleListLink:            0x0,
		ModuleBaseName:            0x58,
		ModuleBaseAddress:         0x30,
		ModuleImageSize:           0x40,
		ThreadListLink:            0x6f8,
		ThreadUniqueId:            0x648,
		ThreadOwnerProcessId:      0x640,
		ProcessDirectoryTableBase: 0x28,
		UnicodeStringBuffer:       0x8,
	},
	Fallbacks: map[Field]uint64{
		ProcessImageName: 0x450,
		ProcessId:        0x180,
	},
})

var builtins = map[string]Table{
	Win10x64.Name(): Win10x64,
}

// Lookup returns a built-in profile by name.
func Lookup(name string) (Table, error) {
	t, ok := builtins[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return t, nil
}

// Names lists the built-in profiles.
func Names() []string {
	return sortedNames(builtins)
}

func sortedNames(m map[string]Table) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// profileDoc is the YAML shape of a profile file. A file holds one
// document per profile.
type profileDoc struct {
	Name      string            `yaml:"name"`
	Offsets   map[string]uint64 `yaml:"offsets"`
	Fallbacks map[string]uint64 `yaml:"fallbacks"`
}

func (d profileDoc) table() (Table, error) {
	if d.Name == "" {
		return Table{}, errors.New("profile without name")
	}
	spec := Spec{Name: d.Name, Offsets: make(map[Field]uint64, len(d.Offsets))}
	for k, v := range d.Offsets {
		f, ok := ParseField(k)
		if !ok {
			return Table{}, fmt.Errorf("profile %s: unknown field %q", d.Name, k)
		}
		spec.Offsets[f] = v
	}
	if len(d.Fallbacks) > 0 {
		spec.Fallbacks = make(map[Field]uint64, len(d.Fallbacks))
		for k, v := range d.Fallbacks {
			f, ok := ParseField(k)
			if !ok {
				return Table{}, fmt.Errorf("profile %s: unknown fallback field %q", d.Name, k)
			}
			spec.Fallbacks[f] = v
		}
	}
	t, err := New(spec)
	if err != nil {
		return Table{}, fmt.Errorf("profile %s: %w", d.Name, err)
	}
	return t, nil
}

// Decode reads every YAML profile document from r.
func Decode(r io.Reader) ([]Table, error) {
	dec := yaml.NewDecoder(r)
	var out []Table
	for {
		var doc profileDoc
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding offset profile: %w", err)
		}
		t, err := doc.table()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Encode writes t as a YAML profile document.
func Encode(w io.Writer, t Table) error {
	spec := t.Spec()
	doc := profileDoc{Name: spec.Name, Offsets: make(map[string]uint64, len(spec.Offsets))}
	for f, v := range spec.Offsets {
		doc.Offsets[f.String()] = v
	}
	if len(spec.Fallbacks) > 0 {
		doc.Fallbacks = make(map[string]uint64, len(spec.Fallbacks))
		for f, v := range spec.Fallbacks {
			doc.Fallbacks[f.String()] = v
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Registry holds the built-in profiles plus any loaded from files.
// Loaded profiles shadow built-ins of the same name.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]Table
}

func NewRegistry() *Registry {
	r := &Registry{tables: make(map[string]Table, len(builtins))}
	for n, t := range builtins {
		r.tables[n] = t
	}
	return r
}

func (r *Registry) Register(t Table) error {
	if !t.Valid() {
		return fmt.Errorf("%w: profile %q is incomplete", ErrMissingField, t.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[t.Name()] = t
	return nil
}

// LoadFile decodes a YAML profile file and registers every profile in it.
func (r *Registry) LoadFile(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tables, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		if err := r.Register(t); err != nil {
			return nil, err
		}
		names = append(names, t.Name())
	}
	return names, nil
}

func (r *Registry) Lookup(name string) (Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return t, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.tables)
}

// Package symbols resolves kernel symbol names from a static table.
package symbols

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

// Table is a name to address map. Lookups ignore case and a leading module
// qualifier such as "nt!" or "ntoskrnl!".
type Table struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	name string
	addr vmi.Addr
}

func NewTable() *Table {
	return &Table{entries: make(map[string]entry)}
}

// FromMap builds a table from name/address pairs.
func FromMap(m map[string]vmi.Addr) *Table {
	t := NewTable()
	for n, a := range m {
		t.Add(n, a)
	}
	return t
}

func normalize(name string) string {
	if i := strings.LastIndexByte(name, '!'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// Add records name at addr, replacing any earlier address.
func (t *Table) Add(name string, addr vmi.Addr) {
	key := normalize(name)
	if key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = entry{name: strings.TrimSpace(name), addr: addr}
}

func (t *Table) ResolveSymbol(name string) (vmi.Addr, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[normalize(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", vmi.ErrUnresolved, name)
	}
	return e.addr, nil
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Names returns the recorded names in their original spelling, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.name)
	}
	sort.Strings(out)
	return out
}

// Chain tries each resolver in turn and returns the first hit.
type Chain []vmi.SymbolResolver

func (c Chain) ResolveSymbol(name string) (vmi.Addr, error) {
	var lastErr error
	for _, r := range c {
		if r == nil {
			continue
		}
		a, err := r.ResolveSymbol(name)
		if err == nil {
			return a, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s", vmi.ErrUnresolved, name)
	}
	return 0, lastErr
}

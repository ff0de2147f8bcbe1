package memacc

import (
	"errors"
	"sync"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

var (
	ErrMemAccOverlap      = errors.New("overlapping range in memory access map")
	ErrMemAccRangeInvalid = errors.New("memory accessor range invalid")
	ErrAccessorNotFound   = errors.New("memory accessor not found")
	ErrMemAccBadLen       = errors.New("memory accessor returned more bytes than requested")
)

// Mapper defines the interface for mapping and reading target memory.
type Mapper interface {
	// ReadTargetMemory reads bytes from the mapped memory accessors. It
	// returns the number of bytes delivered; zero means nothing is mapped.
	ReadTargetMemory(address vmi.Addr, space Space, buf []byte) (int, error)

	// InvalidateMemAccCache drops every cached page.
	InvalidateMemAccCache()

	AddAccessor(accessor Accessor) error
	RemoveAccessor(accessor Accessor) error
	RemoveAllAccessors()
	EnableCaching(enable bool)
}

// GlobalMapper implements a registry of memory accessors shared by all
// address spaces of one target.
type GlobalMapper struct {
	mu        sync.Mutex
	accessors []Accessor
	accCurr   Accessor
	cache     *Cache
}

func NewGlobalMapper() *GlobalMapper {
	return &GlobalMapper{
		cache: NewCache(),
	}
}

func (m *GlobalMapper) EnableCaching(enable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.EnableCaching(enable)
}

// Cache exposes the page cache for sizing and statistics.
func (m *GlobalMapper) Cache() *Cache {
	return m.cache
}

func (m *GlobalMapper) ReadTargetMemory(address vmi.Addr, space Space, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !(m.accCurr != nil && m.accCurr.AddrInRange(address) && m.accCurr.GetSpace() == space) {
		if !m.findAccessor(address, space) {
			return 0, nil
		}
	}

	if m.cache.EnabledForSize(len(buf)) {
		n, ok, err := m.cache.ReadBytesFromCache(m.accCurr, address, space, buf)
		if err != nil {
			return 0, err
		}
		if ok {
			return n, nil
		}
	}

	n, err := m.accCurr.ReadBytes(address, space, buf)
	if n > len(buf) {
		return 0, ErrMemAccBadLen
	}
	return n, err
}

func (m *GlobalMapper) InvalidateMemAccCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.InvalidateAll()
}

func (m *GlobalMapper) AddAccessor(accessor Accessor) error {
	if !accessor.ValidateRange() {
		return ErrMemAccRangeInvalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accessors {
		if a.OverlapRange(accessor) && a.GetSpace() == accessor.GetSpace() {
			return ErrMemAccOverlap
		}
	}

	m.accessors = append(m.accessors, accessor)
	return nil
}

func (m *GlobalMapper) RemoveAccessor(accessor Accessor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.accessors {
		if a == accessor {
			m.accessors = append(m.accessors[:i], m.accessors[i+1:]...)
			if m.accCurr == accessor {
				m.accCurr = nil
			}
			m.cache.InvalidateAll()
			return nil
		}
	}
	return ErrAccessorNotFound
}

func (m *GlobalMapper) RemoveAllAccessors() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accessors {
		if fa, ok := a.(*FileAccessor); ok {
			fa.Close()
		}
	}
	m.accessors = nil
	m.accCurr = nil
	m.cache.InvalidateAll()
}

// Accessors returns the registered accessors in registration order.
func (m *GlobalMapper) Accessors() []Accessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Accessor(nil), m.accessors...)
}

// findAccessor prefers an accessor registered for exactly the requested
// space over one registered for SpaceAny.
func (m *GlobalMapper) findAccessor(address vmi.Addr, space Space) bool {
	var fallback Accessor
	for _, acc := range m.accessors {
		if !acc.AddrInRange(address) || !acc.InSpace(space) {
			continue
		}
		if acc.GetSpace() == space {
			m.accCurr = acc
			return true
		}
		if fallback == nil {
			fallback = acc
		}
	}
	if fallback != nil {
		m.accCurr = fallback
		return true
	}
	return false
}

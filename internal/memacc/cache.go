package memacc

import (
	"errors"

	lru "github.com/hashicorp/golang-lru"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

// Memory Access Cache

const (
	DefaultPageSize = 0x1000
	DefaultNumPages = 256
	MaxPageSize     = 0x10000
	MaxPages        = 16384
	MinPageSize     = 64
	MinPages        = 4
)

var ErrCacheSize = errors.New("cache size out of range")

type pageKey struct {
	space Space
	base  vmi.Addr
}

type cachePage struct {
	start vmi.Addr
	data  []byte
}

// Cache keeps recently read accessor pages. Pages are keyed by space so a
// process address space never serves another one's reads.
type Cache struct {
	pages    *lru.Cache
	pageSize int
	numPages int
	enabled  bool
	hits     uint64
	misses   uint64
}

func NewCache() *Cache {
	return &Cache{
		pageSize: DefaultPageSize,
		numPages: DefaultNumPages,
	}
}

func (c *Cache) EnableCaching(enable bool) {
	c.enabled = enable
	if enable && c.pages == nil {
		c.createCaches()
	}
	if !enable {
		c.InvalidateAll()
	}
}

func (c *Cache) Enabled() bool {
	return c.enabled
}

func (c *Cache) EnabledForSize(reqSize int) bool {
	return c.enabled && reqSize <= c.pageSize
}

// SetCacheSizes changes the page geometry. Out of range values are clamped
// unless errOnLimit is set. The page size must be a power of two.
func (c *Cache) SetCacheSizes(pageSize int, numPages int, errOnLimit bool) error {
	if pageSize < MinPageSize || pageSize > MaxPageSize || numPages < MinPages || numPages > MaxPages {
		if errOnLimit {
			return ErrCacheSize
		}
		pageSize = min(max(pageSize, MinPageSize), MaxPageSize)
		numPages = min(max(numPages, MinPages), MaxPages)
	}
	if pageSize&(pageSize-1) != 0 {
		return ErrCacheSize
	}
	c.pageSize = pageSize
	c.numPages = numPages
	if c.enabled {
		c.createCaches()
	}
	return nil
}

func (c *Cache) createCaches() {
	// lru.New only fails for a non-positive size, which SetCacheSizes prevents.
	c.pages, _ = lru.New(c.numPages)
}

func (c *Cache) InvalidateAll() {
	if c.pages != nil {
		c.pages.Purge()
	}
}

// Stats returns the hit and miss counters since the cache was created.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}

// ReadBytesFromCache satisfies a read from the cached page holding address,
// loading the page through acc on a miss. It returns false when the request
// cannot be served from a single page; the caller then reads directly.
func (c *Cache) ReadBytesFromCache(acc Accessor, address vmi.Addr, space Space, buf []byte) (int, bool, error) {
	if !c.enabled || c.pages == nil {
		return 0, false, nil
	}

	base := address &^ vmi.Addr(c.pageSize-1)
	key := pageKey{space: space, base: base}

	if v, ok := c.pages.Get(key); ok {
		p := v.(*cachePage)
		if n, ok := p.serve(address, buf); ok {
			c.hits++
			return n, true, nil
		}
	}
	c.misses++

	// Load from the later of the page base and the accessor start.
	start, _ := acc.GetRange()
	if start < base {
		start = base
	}
	avail := acc.BytesInRange(start, c.pageSize-int(start-base))
	if avail == 0 {
		return 0, false, nil
	}
	data := make([]byte, avail)
	n, err := acc.ReadBytes(start, space, data)
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	p := &cachePage{start: start, data: data[:n]}
	c.pages.Add(key, p)

	got, ok := p.serve(address, buf)
	return got, ok, nil
}

// serve copies the request out of the page if it lies entirely inside it.
func (p *cachePage) serve(address vmi.Addr, buf []byte) (int, bool) {
	end := p.start + vmi.Addr(len(p.data))
	if address < p.start || address+vmi.Addr(len(buf)) > end {
		return 0, false
	}
	off := address - p.start
	return copy(buf, p.data[off:]), true
}

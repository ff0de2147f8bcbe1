// Package walk enumerates the nodes of circular, doubly linked lists whose
// link fields are embedded in larger guest structures.
//
// The list head (or a node's own link field) holds the address of the next
// node's link field. A node is reported as that link address minus the link
// offset, so callers receive the address of the containing structure.
package walk

import (
	"errors"
	"fmt"
	"iter"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

var ErrInvalidBound = errors.New("walk bound must be positive")

// StopReason tells why a walk ended.
type StopReason int

const (
	// StopNone means the walk has not ended.
	StopNone StopReason = iota
	// StopClosed means the next link led back to the head.
	StopClosed
	// StopReadFailed means a link field could not be read.
	StopReadFailed
	// StopNullLink means a link field held zero.
	StopNullLink
	// StopBound means maxNodes nodes were produced and the list went on.
	StopBound
	// StopCycle means the next node had already been produced.
	StopCycle
)

func (s StopReason) String() string {
	switch s {
	case StopNone:
		return "running"
	case StopClosed:
		return "closed"
	case StopReadFailed:
		return "read failed"
	case StopNullLink:
		return "null link"
	case StopBound:
		return "bound reached"
	case StopCycle:
		return "cycle"
	default:
		return fmt.Sprintf("StopReason(%d)", int(s))
	}
}

// Truncated reports whether the walk ended before the list closed.
func (s StopReason) Truncated() bool {
	return s != StopNone && s != StopClosed
}

// Cursor holds the state of one walk. It is not restartable.
type Cursor struct {
	r          vmi.MemoryReader
	ctx        vmi.Context
	head       vmi.Addr
	linkOffset uint64
	maxNodes   int

	first   vmi.Addr
	hasNode bool // first is a node to produce without reading
	started bool
	prev    vmi.Addr

	visited map[vmi.Addr]struct{}
	count   int
	stop    StopReason
	err     error
}

func newCursor(r vmi.MemoryReader, ctx vmi.Context, head vmi.Addr, linkOffset uint64, maxNodes int) (*Cursor, error) {
	if maxNodes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBound, maxNodes)
	}
	return &Cursor{
		r:          r,
		ctx:        ctx,
		head:       head,
		linkOffset: linkOffset,
		maxNodes:   maxNodes,
		visited:    make(map[vmi.Addr]struct{}, min(maxNodes, 64)),
	}, nil
}

// New starts a walk at the list head: the address of the sentinel link
// field. The head itself is never produced.
func New(r vmi.MemoryReader, ctx vmi.Context, head vmi.Addr, linkOffset uint64, maxNodes int) (*Cursor, error) {
	return newCursor(r, ctx, head, linkOffset, maxNodes)
}

// FromNode starts a walk at a known node rather than at a list head. The
// node is produced first and the walk closes when a link leads back to the
// node's own link field.
func FromNode(r vmi.MemoryReader, ctx vmi.Context, node vmi.Addr, linkOffset uint64, maxNodes int) (*Cursor, error) {
	c, err := newCursor(r, ctx, node.Add(linkOffset), linkOffset, maxNodes)
	if err != nil {
		return nil, err
	}
	c.first = node
	c.hasNode = true
	return c, nil
}

// Nodes is New followed by All.
func Nodes(r vmi.MemoryReader, ctx vmi.Context, head vmi.Addr, linkOffset uint64, maxNodes int) (iter.Seq[vmi.Addr], error) {
	c, err := New(r, ctx, head, linkOffset, maxNodes)
	if err != nil {
		return nil, err
	}
	return c.All(), nil
}

// Next produces the next node address. It performs at most one read of a
// link field, plus one more when the bound is reached to tell a closed list
// from a longer one.
func (c *Cursor) Next() (vmi.Addr, bool) {
	if c.stop != StopNone {
		return 0, false
	}

	if c.count >= c.maxNodes {
		c.peekAtBound()
		return 0, false
	}

	if !c.started && c.hasNode {
		c.started = true
		return c.produce(c.first)
	}
	from := c.head
	if c.started {
		from = c.prev.Add(c.linkOffset)
	}
	c.started = true

	link, ok := c.readLink(from)
	if !ok {
		return 0, false
	}
	node := link - vmi.Addr(c.linkOffset)
	if _, seen := c.visited[node]; seen {
		c.stop = StopCycle
		return 0, false
	}
	return c.produce(node)
}

func (c *Cursor) produce(node vmi.Addr) (vmi.Addr, bool) {
	c.visited[node] = struct{}{}
	c.prev = node
	c.count++
	return node, true
}

// readLink reads one link field and applies the terminating conditions that
// do not depend on the visited set.
func (c *Cursor) readLink(at vmi.Addr) (vmi.Addr, bool) {
	link, err := c.r.ReadAddr(c.ctx, at)
	switch {
	case err != nil:
		c.stop = StopReadFailed
		c.err = fmt.Errorf("reading link at %s: %w", at, err)
		return 0, false
	case link == 0:
		c.stop = StopNullLink
		return 0, false
	case link == c.head:
		c.stop = StopClosed
		return 0, false
	}
	return link, true
}

func (c *Cursor) peekAtBound() {
	if _, ok := c.readLink(c.prev.Add(c.linkOffset)); ok {
		c.stop = StopBound
	}
}

// All returns the remaining nodes as a sequence.
func (c *Cursor) All() iter.Seq[vmi.Addr] {
	return func(yield func(vmi.Addr) bool) {
		for {
			node, ok := c.Next()
			if !ok || !yield(node) {
				return
			}
		}
	}
}

// Stop returns why the walk ended, or StopNone while it is still running.
func (c *Cursor) Stop() StopReason {
	return c.stop
}

// Err returns the read error behind StopReadFailed.
func (c *Cursor) Err() error {
	return c.err
}

// Count returns the number of nodes produced so far.
func (c *Cursor) Count() int {
	return c.count
}

// Head returns the address whose appearance as a link closes the walk.
func (c *Cursor) Head() vmi.Addr {
	return c.head
}

package walk

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/memacc"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

const (
	imgBase    = vmi.Addr(0x10000)
	imgSize    = 0x10000
	linkOffset = 8
	nodeStride = 0x100
)

// image is a flat kernel memory buffer for building synthetic lists.
type image struct {
	mem []byte
}

func newImage() *image {
	return &image{mem: make([]byte, imgSize)}
}

func (im *image) putAddr(at, v vmi.Addr) {
	binary.LittleEndian.PutUint64(im.mem[at-imgBase:], uint64(v))
}

func (im *image) reader(t *testing.T) vmi.MemoryReader {
	t.Helper()
	m := memacc.NewGlobalMapper()
	if err := m.AddAccessor(memacc.NewBufferAccessor(imgBase, im.mem)); err != nil {
		t.Fatalf("AddAccessor() error = %v", err)
	}
	return memacc.NewReader(m)
}

// node returns the address of the i-th synthetic structure.
func node(i int) vmi.Addr {
	return imgBase + vmi.Addr((i+1)*nodeStride)
}

// buildList links head -> node(0) -> ... -> node(n-1) -> head.
func (im *image) buildList(n int) []vmi.Addr {
	head := imgBase
	nodes := make([]vmi.Addr, n)
	prevLink := head
	for i := range n {
		nodes[i] = node(i)
		im.putAddr(prevLink, nodes[i]+linkOffset)
		prevLink = nodes[i] + linkOffset
	}
	im.putAddr(prevLink, head)
	return nodes
}

func collect(t *testing.T, c *Cursor) []vmi.Addr {
	t.Helper()
	return slices.Collect(c.All())
}

func TestClosedList(t *testing.T) {
	im := newImage()
	want := im.buildList(3)
	r := im.reader(t)

	c, err := New(r, vmi.KernelContext(), imgBase, linkOffset, 10)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if diff := cmp.Diff(want, collect(t, c)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
	if c.Stop() != StopClosed {
		t.Errorf("Stop() = %v, want %v", c.Stop(), StopClosed)
	}
	if c.Stop().Truncated() {
		t.Error("a closed walk should not be truncated")
	}
	if _, ok := c.Next(); ok {
		t.Error("Next() after the walk ended should return false")
	}
}

func TestEmptyList(t *testing.T) {
	im := newImage()
	im.putAddr(imgBase, imgBase)

	c, err := New(im.reader(t), vmi.KernelContext(), imgBase, linkOffset, 10)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := collect(t, c); len(got) != 0 {
		t.Errorf("empty list produced %v", got)
	}
	if c.Stop() != StopClosed {
		t.Errorf("Stop() = %v, want %v", c.Stop(), StopClosed)
	}
}

func TestInvalidBound(t *testing.T) {
	r := newImage().reader(t)
	for _, n := range []int{0, -1} {
		if _, err := New(r, vmi.KernelContext(), imgBase, linkOffset, n); !errors.Is(err, ErrInvalidBound) {
			t.Errorf("New(maxNodes=%d) error = %v, want %v", n, err, ErrInvalidBound)
		}
		if _, err := FromNode(r, vmi.KernelContext(), node(0), linkOffset, n); !errors.Is(err, ErrInvalidBound) {
			t.Errorf("FromNode(maxNodes=%d) error = %v, want %v", n, err, ErrInvalidBound)
		}
		if _, err := Nodes(r, vmi.KernelContext(), imgBase, linkOffset, n); !errors.Is(err, ErrInvalidBound) {
			t.Errorf("Nodes(maxNodes=%d) error = %v, want %v", n, err, ErrInvalidBound)
		}
	}
}

func TestBound(t *testing.T) {
	tests := []struct {
		name     string
		length   int
		maxNodes int
		want     int
		stop     StopReason
	}{
		{"BelowLength", 5, 2, 2, StopBound},
		{"EqualLength", 5, 5, 5, StopClosed},
		{"AboveLength", 5, 6, 5, StopClosed},
		{"One", 5, 1, 1, StopBound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := newImage()
			nodes := im.buildList(tt.length)
			c, err := New(im.reader(t), vmi.KernelContext(), imgBase, linkOffset, tt.maxNodes)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			got := collect(t, c)
			if diff := cmp.Diff(nodes[:tt.want], got); diff != "" {
				t.Errorf("nodes mismatch (-want +got):\n%s", diff)
			}
			if c.Stop() != tt.stop {
				t.Errorf("Stop() = %v, want %v", c.Stop(), tt.stop)
			}
		})
	}
}

func TestCycleNotThroughHead(t *testing.T) {
	im := newImage()
	nodes := im.buildList(4)
	// node 3 links back to node 1 instead of the head.
	im.putAddr(nodes[3]+linkOffset, nodes[1]+linkOffset)

	c, err := New(im.reader(t), vmi.KernelContext(), imgBase, linkOffset, 100)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if diff := cmp.Diff(nodes, collect(t, c)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
	if c.Stop() != StopCycle {
		t.Errorf("Stop() = %v, want %v", c.Stop(), StopCycle)
	}
}

func TestSelfLoop(t *testing.T) {
	im := newImage()
	a := node(0)
	im.putAddr(imgBase, a+linkOffset)
	im.putAddr(a+linkOffset, a+linkOffset)

	c, _ := New(im.reader(t), vmi.KernelContext(), imgBase, linkOffset, 100)
	if diff := cmp.Diff([]vmi.Addr{a}, collect(t, c)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
	if c.Stop() != StopCycle {
		t.Errorf("Stop() = %v, want %v", c.Stop(), StopCycle)
	}
}

func TestReadFailure(t *testing.T) {
	t.Run("Head", func(t *testing.T) {
		c, _ := New(newImage().reader(t), vmi.KernelContext(), 0xdead0000, linkOffset, 10)
		if got := collect(t, c); len(got) != 0 {
			t.Errorf("unreadable head produced %v", got)
		}
		if c.Stop() != StopReadFailed {
			t.Errorf("Stop() = %v, want %v", c.Stop(), StopReadFailed)
		}
		if !errors.Is(c.Err(), vmi.ErrNotMapped) {
			t.Errorf("Err() = %v, want %v", c.Err(), vmi.ErrNotMapped)
		}
	})

	t.Run("MidList", func(t *testing.T) {
		im := newImage()
		nodes := im.buildList(3)
		wild := vmi.Addr(0xdead0000)
		im.putAddr(nodes[1]+linkOffset, wild+linkOffset)

		c, _ := New(im.reader(t), vmi.KernelContext(), imgBase, linkOffset, 10)
		want := []vmi.Addr{nodes[0], nodes[1], wild}
		if diff := cmp.Diff(want, collect(t, c)); diff != "" {
			t.Errorf("nodes mismatch (-want +got):\n%s", diff)
		}
		if c.Stop() != StopReadFailed || !c.Stop().Truncated() {
			t.Errorf("Stop() = %v, want %v", c.Stop(), StopReadFailed)
		}
	})
}

func TestNullLink(t *testing.T) {
	im := newImage()
	nodes := im.buildList(3)
	im.putAddr(nodes[1]+linkOffset, 0)

	c, _ := New(im.reader(t), vmi.KernelContext(), imgBase, linkOffset, 10)
	if diff := cmp.Diff(nodes[:2], collect(t, c)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
	if c.Stop() != StopNullLink {
		t.Errorf("Stop() = %v, want %v", c.Stop(), StopNullLink)
	}
}

func TestFromNode(t *testing.T) {
	im := newImage()
	// A ring with no separate sentinel: a -> b -> c -> a.
	a, b, cc := node(0), node(1), node(2)
	im.putAddr(a+linkOffset, b+linkOffset)
	im.putAddr(b+linkOffset, cc+linkOffset)
	im.putAddr(cc+linkOffset, a+linkOffset)

	c, err := FromNode(im.reader(t), vmi.KernelContext(), a, linkOffset, 10)
	if err != nil {
		t.Fatalf("FromNode() error = %v", err)
	}
	if c.Head() != a+linkOffset {
		t.Errorf("Head() = %v, want %v", c.Head(), a+linkOffset)
	}
	if diff := cmp.Diff([]vmi.Addr{a, b, cc}, collect(t, c)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
	if c.Stop() != StopClosed {
		t.Errorf("Stop() = %v, want %v", c.Stop(), StopClosed)
	}
}

func TestFromNodeSingle(t *testing.T) {
	im := newImage()
	a := node(0)
	im.putAddr(a+linkOffset, a+linkOffset)

	c, _ := FromNode(im.reader(t), vmi.KernelContext(), a, linkOffset, 1)
	if diff := cmp.Diff([]vmi.Addr{a}, collect(t, c)); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
	if c.Stop() != StopClosed {
		t.Errorf("Stop() = %v, want %v", c.Stop(), StopClosed)
	}
}

func TestNodes(t *testing.T) {
	im := newImage()
	want := im.buildList(4)

	seq, err := Nodes(im.reader(t), vmi.KernelContext(), imgBase, linkOffset, 10)
	if err != nil {
		t.Fatalf("Nodes() error = %v", err)
	}
	var got []vmi.Addr
	for n := range seq {
		got = append(got, n)
		if len(got) == 2 {
			break
		}
	}
	if diff := cmp.Diff(want[:2], got); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestClosedListProperty(t *testing.T) {
	for n := 1; n <= 40; n++ {
		for _, extra := range []int{0, 1, 17} {
			im := newImage()
			want := im.buildList(n)
			c, err := New(im.reader(t), vmi.KernelContext(), imgBase, linkOffset, n+extra)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			got := collect(t, c)
			if !slices.Equal(got, want) {
				t.Fatalf("n=%d maxNodes=%d: got %v, want %v", n, n+extra, got, want)
			}
			if c.Stop() != StopClosed {
				t.Fatalf("n=%d maxNodes=%d: Stop() = %v, want %v", n, n+extra, c.Stop(), StopClosed)
			}
		}
	}
}

func TestCycleProperty(t *testing.T) {
	for n := 1; n <= 24; n++ {
		for back := 0; back < n; back++ {
			for _, maxNodes := range []int{1, n / 2, n, 3 * n} {
				if maxNodes <= 0 {
					continue
				}
				im := newImage()
				nodes := im.buildList(n)
				im.putAddr(nodes[n-1]+linkOffset, nodes[back]+linkOffset)

				c, err := New(im.reader(t), vmi.KernelContext(), imgBase, linkOffset, maxNodes)
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				got := collect(t, c)
				if len(got) > min(maxNodes, n) {
					t.Fatalf("n=%d back=%d maxNodes=%d: %d nodes exceeds bound", n, back, maxNodes, len(got))
				}
				seen := make(map[vmi.Addr]bool)
				for _, a := range got {
					if seen[a] {
						t.Fatalf("n=%d back=%d maxNodes=%d: %v produced twice", n, back, maxNodes, a)
					}
					seen[a] = true
				}
				if !c.Stop().Truncated() {
					t.Fatalf("n=%d back=%d maxNodes=%d: Stop() = %v, want truncated", n, back, maxNodes, c.Stop())
				}
			}
		}
	}
}

func TestStopReasonString(t *testing.T) {
	tests := []struct {
		reason   StopReason
		expected string
	}{
		{StopNone, "running"},
		{StopClosed, "closed"},
		{StopReadFailed, "read failed"},
		{StopNullLink, "null link"},
		{StopBound, "bound reached"},
		{StopCycle, "cycle"},
		{StopReason(9), "StopReason(9)"},
	}
	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.expected {
			t.Errorf("StopReason.String() = %v, want %v", got, tt.expected)
		}
	}
}

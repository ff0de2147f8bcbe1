package inventory

import (
	"fmt"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/decode"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/walk"
)

// Snapshot is the inventory assembled by one Build. Modules and Threads are
// keyed by process node address; every key is the Node of an entry in
// Processes.
type Snapshot struct {
	Processes []decode.Process
	Modules   map[vmi.Addr][]decode.Module
	Threads   map[vmi.Addr][]decode.Thread

	// CaptureConsistent is false when the target could not be paused for
	// the traversal.
	CaptureConsistent bool

	// HeadSymbol is the symbol the process list was reached through and
	// Head the link address that closes the process walk.
	HeadSymbol string
	Head       vmi.Addr
	// ProcessStop is why the process list walk ended.
	ProcessStop walk.StopReason

	// Faults lists the sub-lists that were abandoned or cut short, and the
	// process list itself when it did not close.
	Faults []error
	// SkippedThreads counts thread nodes dropped for unreadable ids.
	SkippedThreads int
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Modules: make(map[vmi.Addr][]decode.Module),
		Threads: make(map[vmi.Addr][]decode.Thread),
	}
}

// Process returns the process whose node address is node.
func (s *Snapshot) Process(node vmi.Addr) (decode.Process, bool) {
	for _, p := range s.Processes {
		if p.Node == node {
			return p, true
		}
	}
	return decode.Process{}, false
}

// Complete reports whether every list closed and nothing was abandoned.
func (s *Snapshot) Complete() bool {
	return len(s.Faults) == 0 && s.ProcessStop == walk.StopClosed
}

// ProcessListError reports a process list walk that ended before closing.
type ProcessListError struct {
	Head vmi.Addr
	Stop walk.StopReason
	Err  error
}

func (e *ProcessListError) Error() string {
	msg := fmt.Sprintf("process list at %s: %s", e.Head, e.Stop)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessListError) Unwrap() error {
	return e.Err
}

// WindowError reports a failed release of the consistency window.
type WindowError struct {
	Err error
}

func (e *WindowError) Error() string {
	return "releasing consistency window: " + e.Err.Error()
}

func (e *WindowError) Unwrap() error {
	return e.Err
}

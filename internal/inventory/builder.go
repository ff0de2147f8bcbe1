// Package inventory assembles a process, module and thread snapshot of a
// guest by walking its kernel process list.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/decode"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/logging"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/offsets"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/walk"
)

const (
	// ActiveProcessHead is the sentinel of the kernel's active process list.
	ActiveProcessHead = "PsActiveProcessHead"
	// InitialSystemProcess names the first process. Its address is used
	// as the first node of the list.
	InitialSystemProcess = "PsInitialSystemProcess"
)

var (
	ErrNoProcessListFound = errors.New("no process list found")
	ErrIncompleteTable    = errors.New("offset table is incomplete")
)

// Bounds caps every traversal of one build.
type Bounds struct {
	MaxProcesses         int
	MaxModulesPerProcess int
	MaxThreadsPerProcess int
	MaxNameLen           int
	MaxModuleNameLen     int
}

func DefaultBounds() Bounds {
	lim := decode.DefaultLimits()
	return Bounds{
		MaxProcesses:         1000,
		MaxModulesPerProcess: lim.MaxModules,
		MaxThreadsPerProcess: lim.MaxThreads,
		MaxNameLen:           lim.MaxNameLen,
		MaxModuleNameLen:     lim.MaxModuleNameLen,
	}
}

func (b Bounds) limits() decode.Limits {
	return decode.Limits{
		MaxNameLen:       b.MaxNameLen,
		MaxModuleNameLen: b.MaxModuleNameLen,
		MaxModules:       b.MaxModulesPerProcess,
		MaxThreads:       b.MaxThreadsPerProcess,
	}
}

// Builder builds snapshots from a memory reader, a symbol resolver and an
// optional consistency window. It keeps no state between builds.
type Builder struct {
	reader   vmi.MemoryReader
	resolver vmi.SymbolResolver
	window   vmi.ConsistencyWindow
	logger   logging.Logger
	observer Observer
}

type Option func(*Builder)

func WithLogger(l logging.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(b *Builder) { b.observer = o }
}

// NewBuilder returns a builder. A nil window means the target cannot be
// paused and every snapshot is marked inconsistent.
func NewBuilder(r vmi.MemoryReader, res vmi.SymbolResolver, w vmi.ConsistencyWindow, opts ...Option) *Builder {
	b := &Builder{
		reader:   r,
		resolver: res,
		window:   w,
		logger:   logging.NewNoOpLogger(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build resolves the process list, pauses the target when it can, and
// decodes every process with its modules and threads. It fails only when
// no process list can be located or ctx is cancelled; every other failure
// is absorbed into the snapshot.
func (b *Builder) Build(ctx context.Context, tbl offsets.Table, bounds Bounds) (*Snapshot, error) {
	st := &run{observer: b.observer}
	fail := func(err error) (*Snapshot, error) {
		st.enter(StateFailed)
		b.logger.Error(err)
		return nil, err
	}

	if !tbl.Valid() {
		return fail(ErrIncompleteTable)
	}
	if bounds.MaxProcesses <= 0 {
		bounds.MaxProcesses = DefaultBounds().MaxProcesses
	}
	lim := bounds.limits()

	cursor, symbol, err := b.resolveHead(tbl, bounds.MaxProcesses)
	if err != nil {
		return fail(err)
	}
	st.enter(StateHeadResolved)
	b.logger.Logf(logging.SeverityDebug, "process list via %s at %s", symbol, cursor.Head())

	snap := newSnapshot()
	snap.HeadSymbol = symbol
	snap.Head = cursor.Head()

	if err := b.traverse(ctx, st, snap, cursor, tbl, lim); err != nil {
		return fail(err)
	}

	snap.ProcessStop = cursor.Stop()
	if cursor.Stop().Truncated() {
		fault := &ProcessListError{Head: cursor.Head(), Stop: cursor.Stop(), Err: cursor.Err()}
		b.logger.Warning(fault.Error())
		snap.Faults = append(snap.Faults, fault)
	}

	st.enter(StateComplete)
	b.logger.Logf(logging.SeverityInfo, "snapshot: %d processes, %d faults, consistent=%t",
		len(snap.Processes), len(snap.Faults), snap.CaptureConsistent)
	return snap, nil
}

// traverse runs every walk inside the consistency window. The window is
// released on every return path before the build leaves Traversing.
func (b *Builder) traverse(ctx context.Context, st *run, snap *Snapshot, cursor *walk.Cursor, tbl offsets.Table, lim decode.Limits) error {
	release := b.acquire(snap)
	defer release()

	st.enter(StateTraversing)
	kctx := vmi.KernelContext()
	for node := range cursor.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.collect(snap, kctx, node, tbl, lim)
	}
	return ctx.Err()
}

// resolveHead prefers the list sentinel and falls back to the initial
// process, walking from that node instead.
func (b *Builder) resolveHead(tbl offsets.Table, maxProcesses int) (*walk.Cursor, string, error) {
	kctx := vmi.KernelContext()
	link := tbl.Offset(offsets.ProcessListLink)

	head, errPrimary := b.resolve(ActiveProcessHead)
	if errPrimary == nil {
		c, err := walk.New(b.reader, kctx, head, link, maxProcesses)
		return c, ActiveProcessHead, err
	}
	b.logger.Logf(logging.SeverityDebug, "%s: %v", ActiveProcessHead, errPrimary)

	first, errSecondary := b.resolve(InitialSystemProcess)
	if errSecondary == nil {
		c, err := walk.FromNode(b.reader, kctx, first, link, maxProcesses)
		return c, InitialSystemProcess, err
	}
	return nil, "", fmt.Errorf("%w: %w", ErrNoProcessListFound, errors.Join(errPrimary, errSecondary))
}

func (b *Builder) resolve(name string) (vmi.Addr, error) {
	if b.resolver == nil {
		return 0, fmt.Errorf("%w: %s: no symbol resolver", vmi.ErrUnresolved, name)
	}
	a, err := b.resolver.ResolveSymbol(name)
	if err != nil {
		return 0, err
	}
	if a == 0 {
		return 0, fmt.Errorf("%w: %s resolved to zero", vmi.ErrUnresolved, name)
	}
	return a, nil
}

// acquire opens the consistency window and returns the func that closes it.
func (b *Builder) acquire(snap *Snapshot) func() {
	if b.window == nil {
		b.logger.Debug("no consistency window; snapshot taken from a running target")
		return func() {}
	}
	h, err := b.window.Acquire()
	if err != nil {
		b.logger.Logf(logging.SeverityWarning, "pausing target failed, continuing unpaused: %v", err)
		return func() {}
	}
	snap.CaptureConsistent = true
	return func() {
		if err := b.window.Release(h); err != nil {
			werr := &WindowError{Err: err}
			b.logger.Error(werr)
			snap.Faults = append(snap.Faults, werr)
		}
	}
}

// collect decodes one process and its sub-lists into snap.
func (b *Builder) collect(snap *Snapshot, kctx vmi.Context, node vmi.Addr, tbl offsets.Table, lim decode.Limits) {
	p := decode.ReadProcess(b.reader, kctx, node, tbl, lim)
	snap.Processes = append(snap.Processes, p)

	mods, err := decode.ReadModules(b.reader, kctx, p, tbl, lim)
	if err != nil {
		b.logger.Warning(err.Error())
		snap.Faults = append(snap.Faults, err)
	}
	snap.Modules[node] = mods

	threads, skipped, err := decode.ReadThreads(b.reader, kctx, p, tbl, lim)
	if err != nil {
		b.logger.Warning(err.Error())
		snap.Faults = append(snap.Faults, err)
	}
	if skipped > 0 {
		b.logger.Logf(logging.SeverityDebug, "process %s: %d threads with unreadable ids skipped", node, skipped)
		snap.SkippedThreads += skipped
	}
	snap.Threads[node] = threads
}

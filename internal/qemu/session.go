package qemu

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/logging"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/memacc"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

// DefaultMinRAM is the smallest mapping considered guest RAM when the
// host address is discovered.
const DefaultMinRAM = 256 << 20

// Options selects the QEMU process and describes its guest RAM.
type Options struct {
	// VMName is matched against "-name"; ignored when PID is set.
	VMName string
	PID    int32
	// HostBase is the host address of guest physical 0. Zero means
	// discover it from the process mappings.
	HostBase uint64
	// RAMSize is the guest RAM size, or the minimum size of the mapping
	// searched for when HostBase is zero.
	RAMSize   uint64
	KernelDTB vmi.Addr
	Cache     bool

	Fs     afero.Fs
	Logger logging.Logger
}

// Session is an attached QEMU guest.
type Session struct {
	PID    int32
	RAM    Mapping
	Mapper *memacc.GlobalMapper
	Reader *memacc.Reader
	Window *Pauser

	mem HostMemory
}

// Attach locates the QEMU process and maps its guest RAM.
func Attach(ctx context.Context, opts Options) (*Session, error) {
	if opts.KernelDTB == 0 {
		return nil, memacc.ErrNoKernelDTB
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}

	pid := opts.PID
	if pid == 0 {
		var err error
		if pid, err = Find(ctx, opts.VMName); err != nil {
			return nil, err
		}
	}

	ram, err := locateRAM(opts.Fs, pid, opts)
	if err != nil {
		return nil, err
	}
	opts.Logger.Logf(logging.SeverityInfo, "qemu pid %d: guest RAM at host %#x, %d MiB", pid, ram.Start, ram.Size()>>20)

	s := &Session{PID: pid, RAM: ram, Mapper: memacc.NewGlobalMapper()}
	s.mem = OpenProcessMemory(opts.Fs, pid)
	if err := s.Mapper.AddAccessor(NewRAMAccessor(s.mem, 0, ram.Start, ram.Size())); err != nil {
		s.mem.Close()
		return nil, err
	}
	s.Mapper.EnableCaching(opts.Cache)
	s.Reader = memacc.NewReader(s.Mapper, memacc.WithTranslator(memacc.NewPageWalker(s.Mapper, opts.KernelDTB)))

	if s.Window, err = NewPauser(pid, s.Mapper); err != nil {
		s.mem.Close()
		return nil, err
	}
	return s, nil
}

func locateRAM(fs afero.Fs, pid int32, opts Options) (Mapping, error) {
	if opts.HostBase != 0 {
		if opts.RAMSize == 0 {
			return Mapping{}, fmt.Errorf("%w: host base given without RAM size", ErrNoRAM)
		}
		return Mapping{Start: opts.HostBase, End: opts.HostBase + opts.RAMSize, Perms: "rw-p"}, nil
	}
	maps, err := ReadMaps(fs, pid)
	if err != nil {
		return Mapping{}, err
	}
	minSize := opts.RAMSize
	if minSize == 0 {
		minSize = DefaultMinRAM
	}
	ram, err := FindRAM(maps, minSize)
	if err != nil {
		return Mapping{}, fmt.Errorf("pid %d: %w", pid, err)
	}
	if opts.RAMSize != 0 && ram.Size() > opts.RAMSize {
		ram.End = ram.Start + opts.RAMSize
	}
	return ram, nil
}

func (s *Session) Close() error {
	return s.mem.Close()
}

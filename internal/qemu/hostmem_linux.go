package qemu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// processMemory reads a host process with process_vm_readv and falls back
// to /proc/<pid>/mem where the syscall is unavailable or refused.
type processMemory struct {
	pid int32
	fs  afero.Fs

	mu     sync.Mutex
	procfs bool
	mem    afero.File
}

// OpenProcessMemory returns a HostMemory for pid.
func OpenProcessMemory(fs afero.Fs, pid int32) HostMemory {
	return &processMemory{pid: pid, fs: fs}
}

func (p *processMemory) ReadAt(buf []byte, hostAddr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.procfs {
		local := []unix.Iovec{{Base: &buf[0]}}
		local[0].SetLen(len(buf))
		remote := []unix.RemoteIovec{{Base: uintptr(hostAddr), Len: len(buf)}}
		n, err := unix.ProcessVMReadv(int(p.pid), local, remote, 0)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, unix.ENOSYS) && !errors.Is(err, unix.EPERM) {
			return n, fmt.Errorf("process_vm_readv pid %d: %w", p.pid, err)
		}
		p.procfs = true
	}
	return p.readProcfs(buf, hostAddr)
}

func (p *processMemory) readProcfs(buf []byte, hostAddr uint64) (int, error) {
	if p.mem == nil {
		f, err := p.fs.Open(fmt.Sprintf("/proc/%d/mem", p.pid))
		if err != nil {
			return 0, err
		}
		p.mem = f
	}
	return p.mem.ReadAt(buf, int64(hostAddr))
}

func (p *processMemory) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mem == nil {
		return nil
	}
	err := p.mem.Close()
	p.mem = nil
	return err
}

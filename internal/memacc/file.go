package memacc

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/afero"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

var (
	ErrFileAccess = errors.New("memory file access error")
	ErrFileRange  = errors.New("memory file range exceeds file size")
)

// FileAccessor serves a window of a raw dump file at a fixed address.
type FileAccessor struct {
	BaseAccessor
	path       string
	file       afero.File
	fileOffset int64
	mu         sync.Mutex
}

// NewFileAccessor maps size bytes of the file at path, starting at file
// offset, to startAddr. A zero size maps the file from offset to its end.
func NewFileAccessor(fs afero.Fs, path string, startAddr vmi.Addr, offset int64, size int64) (*FileAccessor, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrFileAccess, err)
	}
	fileSize := info.Size()

	if size == 0 {
		size = fileSize - offset
	}
	if offset < 0 || size <= 0 || offset+size > fileSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s offset=%d size=%d file=%d", ErrFileRange, path, offset, size, fileSize)
	}

	return &FileAccessor{
		BaseAccessor: BaseAccessor{
			StartAddress: startAddr,
			EndAddress:   startAddr + vmi.Addr(size) - 1,
			AccType:      TypeFile,
			AccSpace:     SpaceAny,
		},
		path:       path,
		file:       f,
		fileOffset: offset,
	}, nil
}

// ReadBytes implements the Accessor interface.
func (f *FileAccessor) ReadBytes(address vmi.Addr, space Space, buf []byte) (int, error) {
	if !f.AddrInRange(address) || !f.InSpace(space) {
		return 0, nil
	}
	n := f.BytesInRange(address, len(buf))

	f.mu.Lock()
	defer f.mu.Unlock()

	got, err := f.file.ReadAt(buf[:n], f.fileOffset+int64(address-f.StartAddress))
	if err != nil && err != io.EOF {
		return got, fmt.Errorf("%w: %s: %v", vmi.ErrIO, f.path, err)
	}
	return got, nil
}

// Close releases the underlying file.
func (f *FileAccessor) Close() error {
	return f.file.Close()
}

func (f *FileAccessor) String() string {
	return fmt.Sprintf("%s\nFilename=%s", f.BaseAccessor.String(), f.path)
}

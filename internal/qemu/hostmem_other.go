//go:build !linux

package qemu

import (
	"errors"

	"github.com/spf13/afero"
)

var errUnsupported = errors.New("reading host process memory is only supported on linux")

type unsupportedMemory struct{}

// OpenProcessMemory returns a HostMemory for pid.
func OpenProcessMemory(afero.Fs, int32) HostMemory {
	return unsupportedMemory{}
}

func (unsupportedMemory) ReadAt([]byte, uint64) (int, error) {
	return 0, errUnsupported
}

func (unsupportedMemory) Close() error {
	return nil
}

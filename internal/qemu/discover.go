// Package qemu reads the memory of a running QEMU guest from the host
// process that backs it.
package qemu

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

var (
	ErrNotFound  = errors.New("no matching qemu process")
	ErrAmbiguous = errors.New("more than one matching qemu process")
)

// matchCmdline reports whether args are a QEMU invocation for vmName.
// An empty vmName matches any QEMU process.
func matchCmdline(args []string, vmName string) bool {
	if len(args) == 0 || !strings.Contains(filepath.Base(args[0]), "qemu") {
		return false
	}
	if vmName == "" {
		return true
	}
	for i, a := range args {
		if a != "-name" || i+1 >= len(args) {
			continue
		}
		// -name guest=win10,debug-threads=on  or  -name win10
		for _, part := range strings.Split(args[i+1], ",") {
			if strings.TrimPrefix(part, "guest=") == vmName {
				return true
			}
		}
	}
	return false
}

// Find returns the pid of the QEMU process running vmName.
func Find(ctx context.Context, vmName string) (int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	var found []int32
	for _, p := range procs {
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil {
			continue
		}
		if matchCmdline(args, vmName) {
			found = append(found, p.Pid)
		}
	}

	switch len(found) {
	case 0:
		return 0, fmt.Errorf("%w: %q", ErrNotFound, vmName)
	case 1:
		return found[0], nil
	default:
		return 0, fmt.Errorf("%w: %q: pids %v", ErrAmbiguous, vmName, found)
	}
}

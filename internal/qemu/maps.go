package qemu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

var ErrNoRAM = errors.New("guest RAM mapping not found")

// Mapping is one line of /proc/<pid>/maps.
type Mapping struct {
	Start, End uint64
	Perms      string
	Offset     uint64
	Path       string
}

func (m Mapping) Size() uint64 {
	return m.End - m.Start
}

// Anonymous reports whether the mapping is not backed by a file.
func (m Mapping) Anonymous() bool {
	return m.Path == "" || strings.HasPrefix(m.Path, "/memfd:") || m.Path == "[anon]"
}

// ParseMaps parses the /proc/<pid>/maps format.
func ParseMaps(r io.Reader) ([]Mapping, error) {
	var out []Mapping
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			return nil, fmt.Errorf("bad maps range %q", fields[0])
		}
		start, err := strconv.ParseUint(lo, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad maps range %q: %w", fields[0], err)
		}
		end, err := strconv.ParseUint(hi, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad maps range %q: %w", fields[0], err)
		}
		off, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad maps offset %q: %w", fields[2], err)
		}
		m := Mapping{Start: start, End: end, Perms: fields[1], Offset: off}
		if len(fields) > 5 {
			m.Path = strings.Join(fields[5:], " ")
		}
		out = append(out, m)
	}
	return out, scanner.Err()
}

// ReadMaps reads the mappings of pid.
func ReadMaps(fs afero.Fs, pid int32) ([]Mapping, error) {
	f, err := fs.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMaps(f)
}

// FindRAM picks the host mapping holding guest RAM: the largest anonymous
// read-write mapping of at least minSize bytes.
func FindRAM(maps []Mapping, minSize uint64) (Mapping, error) {
	var best Mapping
	for _, m := range maps {
		if !m.Anonymous() || !strings.HasPrefix(m.Perms, "rw") || m.Size() < minSize {
			continue
		}
		if m.Size() > best.Size() {
			best = m
		}
	}
	if best.Size() == 0 {
		return Mapping{}, fmt.Errorf("%w: no anonymous rw mapping of %#x bytes", ErrNoRAM, minSize)
	}
	return best, nil
}

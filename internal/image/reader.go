package image

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/spf13/afero"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/logging"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/memacc"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/symbols"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

var ErrNoDumps = errors.New("image has no memory dumps")

// Image is an offline guest memory capture: dump files mapped at their
// guest addresses plus the kernel symbols needed to find the process list.
type Image struct {
	Dir     string
	Info    Info
	Mapper  *memacc.GlobalMapper
	Reader  *memacc.Reader
	Symbols *symbols.Table

	closers []io.Closer
}

// Reader reads an image directory
type Reader struct {
	Fs     afero.Fs
	Logger logging.Logger
}

// NewReader creates a Reader over fs
func NewReader(fs afero.Fs) *Reader {
	return &Reader{Fs: fs, Logger: logging.NewNoOpLogger()}
}

// Open reads image.ini in dir and maps every dump it lists.
func (r *Reader) Open(dir string) (*Image, error) {
	iniPath := filepath.Join(dir, ImageINIFilename)
	file, err := r.Fs.Open(iniPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", iniPath, err)
	}
	parsed, err := ParseImage(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", iniPath, err)
	}
	if len(parsed.Dumps) == 0 {
		return nil, fmt.Errorf("%s: %w", iniPath, ErrNoDumps)
	}

	img := &Image{
		Dir:     dir,
		Info:    parsed.Info,
		Mapper:  memacc.NewGlobalMapper(),
		Symbols: symbols.FromMap(parsed.Symbols),
	}
	for _, d := range parsed.Dumps {
		if err := img.mapDump(r.Fs, d); err != nil {
			img.Close()
			return nil, err
		}
		r.Logger.Logf(logging.SeverityDebug, "mapped [%s] %s at %s (%s)", d.Section, d.Path, d.Address, d.Compression)
	}

	opts := []memacc.Option{memacc.WithAddrSize(parsed.Info.AddressWidth / 8)}
	if parsed.Info.KernelDTB != 0 {
		opts = append(opts, memacc.WithTranslator(memacc.NewPageWalker(img.Mapper, parsed.Info.KernelDTB)))
	}
	img.Reader = memacc.NewReader(img.Mapper, opts...)

	r.Logger.Logf(logging.SeverityInfo, "image %s: %d dumps, %d symbols, profile %q",
		dir, len(parsed.Dumps), img.Symbols.Len(), parsed.Info.Profile)
	return img, nil
}

// Open reads the image in dir from the host filesystem.
func Open(dir string) (*Image, error) {
	return NewReader(afero.NewOsFs()).Open(dir)
}

func (img *Image) mapDump(fs afero.Fs, d DumpDef) error {
	space := memacc.SpaceAny
	if d.Space != "" {
		s, err := memacc.ParseSpace(d.Space)
		if err != nil {
			return fmt.Errorf("[%s]: %w", d.Section, err)
		}
		space = s
	}
	if img.Info.KernelDTB != 0 && d.Space == "" {
		space = memacc.SpacePhysical
	}

	path := d.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(img.Dir, path)
	}

	var acc memacc.Accessor
	switch d.Compression {
	case CompressionSnappy:
		data, err := readSnappy(fs, path, d)
		if err != nil {
			return fmt.Errorf("[%s]: %w", d.Section, err)
		}
		acc = memacc.NewBufferAccessor(d.Address, data)
	default:
		fa, err := memacc.NewFileAccessor(fs, path, d.Address, int64(d.Offset), int64(d.Length))
		if err != nil {
			return fmt.Errorf("[%s]: %w", d.Section, err)
		}
		img.closers = append(img.closers, fa)
		acc = fa
	}
	acc.SetSpace(space)

	if err := img.Mapper.AddAccessor(acc); err != nil {
		return fmt.Errorf("[%s] at %s: %w", d.Section, d.Address, err)
	}
	return nil
}

// readSnappy decodes a snappy block-compressed dump and applies offset and
// length to the decoded bytes.
func readSnappy(fs afero.Fs, path string, d DumpDef) ([]byte, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memacc.ErrFileAccess, err)
	}
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: snappy: %w", path, err)
	}
	if d.Offset > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %s offset=%d size=%d", memacc.ErrFileRange, path, d.Offset, len(data))
	}
	data = data[d.Offset:]
	if d.Length != 0 {
		if d.Length > uint64(len(data)) {
			return nil, fmt.Errorf("%w: %s length=%d size=%d", memacc.ErrFileRange, path, d.Length, len(data))
		}
		data = data[:d.Length]
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", memacc.ErrFileRange, path)
	}
	return data, nil
}

// Acquire always succeeds: a capture cannot change under the reader.
func (img *Image) Acquire() (vmi.WindowHandle, error) {
	return img, nil
}

func (img *Image) Release(vmi.WindowHandle) error {
	return nil
}

// Close releases the open dump files.
func (img *Image) Close() error {
	var errs []error
	for _, c := range img.closers {
		errs = append(errs, c.Close())
	}
	img.closers = nil
	return errors.Join(errs...)
}

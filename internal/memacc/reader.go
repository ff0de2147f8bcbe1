package memacc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf16"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

var ErrInvalidLength = errors.New("invalid read length")

// Translator maps a guest address in a context onto the mapper address and
// space that hold it. The returned length is how many bytes from there are
// contiguous in the mapper.
type Translator interface {
	Translate(ctx vmi.Context, va vmi.Addr) (Space, vmi.Addr, int, error)
}

// Identity serves virtual addresses directly: kernel context reads go to
// SpaceKernel accessors and process context reads to SpaceDTB accessors,
// with SpaceAny accessors as the fallback for both.
type Identity struct{}

func (Identity) Translate(ctx vmi.Context, va vmi.Addr) (Space, vmi.Addr, int, error) {
	return SpaceFor(ctx), va, math.MaxInt, nil
}

// Reader implements vmi.MemoryReader over a Mapper.
type Reader struct {
	mapper   Mapper
	xlat     Translator
	addrSize int
}

// Option configures a Reader.
type Option func(*Reader)

// WithTranslator places a translation layer between guest and mapper addresses.
func WithTranslator(t Translator) Option {
	return func(r *Reader) { r.xlat = t }
}

// WithAddrSize sets the guest pointer width in bytes (4 or 8).
func WithAddrSize(n int) Option {
	return func(r *Reader) {
		if n == vmi.AddrSize32 || n == vmi.AddrSize64 {
			r.addrSize = n
		}
	}
}

func NewReader(m Mapper, opts ...Option) *Reader {
	r := &Reader{
		mapper:   m,
		xlat:     Identity{},
		addrSize: vmi.AddrSize64,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// AddrSize returns the configured guest pointer width.
func (r *Reader) AddrSize() int {
	return r.addrSize
}

// Mapper returns the underlying mapper.
func (r *Reader) Mapper() Mapper {
	return r.mapper
}

func (r *Reader) ReadBytes(ctx vmi.Context, addr vmi.Addr, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	buf := make([]byte, n)
	if err := r.readFull(ctx, addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readFull fills buf, following translation and accessor boundaries.
func (r *Reader) readFull(ctx vmi.Context, addr vmi.Addr, buf []byte) error {
	off := 0
	for off < len(buf) {
		va := addr + vmi.Addr(off)
		space, ma, contig, err := r.xlat.Translate(ctx, va)
		if err != nil {
			return err
		}
		chunk := min(len(buf)-off, contig)
		got, err := r.mapper.ReadTargetMemory(ma, space, buf[off:off+chunk])
		if err != nil {
			if errors.Is(err, vmi.ErrIO) {
				return err
			}
			return fmt.Errorf("%w: %s %s: %v", vmi.ErrIO, ctx, va, err)
		}
		if got == 0 {
			return fmt.Errorf("%w: %s %s", vmi.ErrNotMapped, ctx, va)
		}
		off += got
	}
	return nil
}

func (r *Reader) ReadUint16(ctx vmi.Context, addr vmi.Addr) (uint16, error) {
	var b [2]byte
	if err := r.readFull(ctx, addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (r *Reader) ReadUint32(ctx vmi.Context, addr vmi.Addr) (uint32, error) {
	var b [4]byte
	if err := r.readFull(ctx, addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (r *Reader) ReadUint64(ctx vmi.Context, addr vmi.Addr) (uint64, error) {
	var b [8]byte
	if err := r.readFull(ctx, addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (r *Reader) ReadAddr(ctx vmi.Context, addr vmi.Addr) (vmi.Addr, error) {
	if r.addrSize == vmi.AddrSize32 {
		v, err := r.ReadUint32(ctx, addr)
		return vmi.Addr(v), err
	}
	v, err := r.ReadUint64(ctx, addr)
	return vmi.Addr(v), err
}

// readBounded reads up to maxBytes, one page-bounded chunk at a time, until
// stop reports a terminator in the bytes read so far. A mapping edge after
// the first chunk ends the read without error.
func (r *Reader) readBounded(ctx vmi.Context, addr vmi.Addr, maxBytes int, stop func([]byte) bool) ([]byte, error) {
	var out []byte
	for len(out) < maxBytes {
		va := addr + vmi.Addr(len(out))
		toPage := vmi.PageSize - int(va&(vmi.PageSize-1))
		chunk := make([]byte, min(maxBytes-len(out), toPage))
		if err := r.readFull(ctx, va, chunk); err != nil {
			if len(out) == 0 {
				return nil, err
			}
			break
		}
		out = append(out, chunk...)
		if stop(out) {
			break
		}
	}
	return out, nil
}

func (r *Reader) ReadNarrowString(ctx vmi.Context, addr vmi.Addr, maxLen int) (string, error) {
	if maxLen <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, maxLen)
	}
	raw, err := r.readBounded(ctx, addr, maxLen, func(b []byte) bool {
		return strings.IndexByte(string(b), 0) >= 0
	})
	if err != nil {
		return "", err
	}
	if i := strings.IndexByte(string(raw), 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw), nil
}

func (r *Reader) ReadWideString(ctx vmi.Context, addr vmi.Addr, maxLen int) (string, error) {
	if maxLen <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, maxLen)
	}
	raw, err := r.readBounded(ctx, addr, maxLen*2, func(b []byte) bool {
		for i := 0; i+1 < len(b); i += 2 {
			if b[i] == 0 && b[i+1] == 0 {
				return true
			}
		}
		return false
	})
	if err != nil {
		return "", err
	}
	return DecodeUTF16(raw), nil
}

// DecodeUTF16 decodes little-endian UTF-16 up to the first NUL unit.
// A trailing odd byte is ignored.
func DecodeUTF16(raw []byte) string {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		u := binary.LittleEndian.Uint16(raw[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

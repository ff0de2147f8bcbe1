package main

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/config"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/image"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/logging"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/qemu"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/symbols"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

// target is the guest a snapshot is taken from.
type target struct {
	reader   vmi.MemoryReader
	resolver vmi.SymbolResolver
	window   vmi.ConsistencyWindow
	// profile is the offset profile the source names, if any.
	profile string
	close   func() error
}

func (t *target) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}

// openTarget opens the source selected by cfg. Symbols from the config
// take precedence over those shipped with an image.
func openTarget(ctx context.Context, cfg *config.Config, fs afero.Fs, logger logging.Logger) (*target, error) {
	switch cfg.Source {
	case config.SourceImage:
		r := image.NewReader(fs)
		r.Logger = logger
		img, err := r.Open(cfg.Image.Dir)
		if err != nil {
			return nil, err
		}
		return &target{
			reader:   img.Reader,
			resolver: symbols.Chain{cfg.SymbolTable(), img.Symbols},
			window:   img,
			profile:  img.Info.Profile,
			close:    img.Close,
		}, nil

	case config.SourceQemu:
		opts, err := qemuOptions(cfg)
		if err != nil {
			return nil, err
		}
		opts.Fs = fs
		opts.Logger = logger
		s, err := qemu.Attach(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &target{
			reader:   s.Reader,
			resolver: cfg.SymbolTable(),
			window:   s.Window,
			close:    s.Close,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown source %q", config.ErrInvalid, cfg.Source)
}

func qemuOptions(cfg *config.Config) (qemu.Options, error) {
	q := cfg.Qemu
	opts := qemu.Options{VMName: q.VMName, PID: q.PID, Cache: q.Cache}
	for _, f := range []struct {
		key string
		s   string
		dst *uint64
	}{
		{"host_base", q.HostBase, &opts.HostBase},
		{"ram_size", q.RAMSize, &opts.RAMSize},
	} {
		if f.s == "" {
			continue
		}
		v, err := config.ParseUint(f.s)
		if err != nil {
			return qemu.Options{}, fmt.Errorf("%w: qemu.%s: %v", config.ErrInvalid, f.key, err)
		}
		*f.dst = v
	}
	dtb, err := config.ParseUint(q.KernelDTB)
	if err != nil {
		return qemu.Options{}, fmt.Errorf("%w: qemu.kernel_dtb: %v", config.ErrInvalid, err)
	}
	opts.KernelDTB = vmi.Addr(dtb)
	return opts, nil
}

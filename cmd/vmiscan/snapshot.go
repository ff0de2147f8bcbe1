package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/inventory"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/logging"
)

const (
	formatText = "text"
	formatJSON = "json"
)

type snapshotOptions struct {
	format  string
	modules bool
	threads bool
}

func (a *app) newSnapshotCmd() *cobra.Command {
	var opts snapshotOptions

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Build a process, module and thread inventory",
		Example: `  vmiscan snapshot --image /var/lib/vmi/win10
  vmiscan snapshot --source qemu --vm win10 --kernel-dtb 0x1aa000 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != formatText && opts.format != formatJSON {
				return fmt.Errorf("unknown format %q", opts.format)
			}
			return a.runSnapshot(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "o", formatText, "output format: text or json")
	f.BoolVarP(&opts.modules, "modules", "m", false, "list the modules of every process (text format)")
	f.BoolVarP(&opts.threads, "threads", "t", false, "list the threads of every process (text format)")
	f.String("source", "", "memory source: image or qemu")
	f.String("image", "", "image directory")
	f.String("vm", "", "QEMU guest name")
	f.Int32("pid", 0, "QEMU process id")
	f.String("kernel-dtb", "", "kernel page-table root of a QEMU guest")
	f.String("host-base", "", "host address of guest RAM")
	f.String("ram-size", "", "guest RAM size")
	f.Int("max-processes", 0, "process list bound")
	for key, name := range map[string]string{
		"source":               "source",
		"image.dir":            "image",
		"qemu.vm_name":         "vm",
		"qemu.pid":             "pid",
		"qemu.kernel_dtb":      "kernel-dtb",
		"qemu.host_base":       "host-base",
		"qemu.ram_size":        "ram-size",
		"bounds.max_processes": "max-processes",
	} {
		cobra.CheckErr(a.v.BindPFlag(key, f.Lookup(name)))
	}
	return cmd
}

func (a *app) runSnapshot(cmd *cobra.Command, opts snapshotOptions) error {
	cfg, err := a.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Sync()

	t, err := openTarget(cmd.Context(), cfg, a.fs, logger)
	if err != nil {
		return err
	}
	defer t.Close()

	tbl, err := cfg.OffsetTable(a.fs, t.profile)
	if err != nil {
		return err
	}
	logger.Logf(logging.SeverityDebug, "using offset profile %s", tbl.Name())

	b := inventory.NewBuilder(t.reader, t.resolver, t.window,
		inventory.WithLogger(logger),
		inventory.WithObserver(func(from, to inventory.State) {
			logger.Logf(logging.SeverityDebug, "build: %s -> %s", from, to)
		}))
	snap, err := b.Build(cmd.Context(), tbl, cfg.InventoryBounds())
	if err != nil {
		return err
	}

	rep := newReport(snap, tbl.Name())
	if opts.format == formatJSON {
		return writeJSON(cmd.OutOrStdout(), rep)
	}
	return writeText(cmd.OutOrStdout(), rep, opts.modules, opts.threads)
}

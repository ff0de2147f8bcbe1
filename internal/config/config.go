// Package config loads vmiscan settings from a YAML file, the environment
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/inventory"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/logging"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/offsets"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/symbols"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
)

const (
	SourceImage = "image"
	SourceQemu  = "qemu"

	EnvPrefix = "VMISCAN"
	FileName  = ".vmiscan"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Source      string            `mapstructure:"source"`
	Image       ImageConfig       `mapstructure:"image"`
	Qemu        QemuConfig        `mapstructure:"qemu"`
	Symbols     map[string]string `mapstructure:"symbols"`
	Profile     string            `mapstructure:"profile"`
	ProfileFile string            `mapstructure:"profile_file"`
	Bounds      BoundsConfig      `mapstructure:"bounds"`
	Log         LogConfig         `mapstructure:"log"`
}

type ImageConfig struct {
	Dir string `mapstructure:"dir"`
}

// QemuConfig describes a running guest. Addresses are strings so that hex
// notation survives every config source.
type QemuConfig struct {
	VMName    string `mapstructure:"vm_name"`
	PID       int32  `mapstructure:"pid"`
	HostBase  string `mapstructure:"host_base"`
	RAMSize   string `mapstructure:"ram_size"`
	KernelDTB string `mapstructure:"kernel_dtb"`
	Cache     bool   `mapstructure:"cache"`
}

type BoundsConfig struct {
	MaxProcesses         int `mapstructure:"max_processes"`
	MaxModulesPerProcess int `mapstructure:"max_modules"`
	MaxThreadsPerProcess int `mapstructure:"max_threads"`
	MaxNameLen           int `mapstructure:"max_name_len"`
	MaxModuleNameLen     int `mapstructure:"max_module_name_len"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// NewViper returns a viper instance reading from fs with the defaults set
// and VMISCAN_* environment variables bound.
func NewViper(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)

	b := inventory.DefaultBounds()
	v.SetDefault("source", SourceImage)
	// Keys without a default are invisible to Unmarshal when they only
	// come from the environment.
	for _, key := range []string{"image.dir", "qemu.vm_name", "qemu.host_base", "qemu.ram_size",
		"qemu.kernel_dtb", "profile", "profile_file", "log.file"} {
		v.SetDefault(key, "")
	}
	v.SetDefault("qemu.pid", 0)
	v.SetDefault("qemu.cache", true)
	v.SetDefault("bounds.max_processes", b.MaxProcesses)
	v.SetDefault("bounds.max_modules", b.MaxModulesPerProcess)
	v.SetDefault("bounds.max_threads", b.MaxThreadsPerProcess)
	v.SetDefault("bounds.max_name_len", b.MaxNameLen)
	v.SetDefault("bounds.max_module_name_len", b.MaxModuleNameLen)
	v.SetDefault("log.level", logging.SeverityInfo.String())
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or .vmiscan.yaml from the home or working directory
// when path is empty, and decodes the merged settings. A missing default
// file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &c, nil
}

// Validate checks the settings needed by the selected source.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceImage:
		if c.Image.Dir == "" {
			return fmt.Errorf("%w: image.dir is required for source %q", ErrInvalid, c.Source)
		}
	case SourceQemu:
		if c.Qemu.KernelDTB == "" {
			return fmt.Errorf("%w: qemu.kernel_dtb is required for source %q", ErrInvalid, c.Source)
		}
		if c.Qemu.HostBase != "" && c.Qemu.RAMSize == "" {
			return fmt.Errorf("%w: qemu.host_base needs qemu.ram_size", ErrInvalid)
		}
		for key, s := range map[string]string{"host_base": c.Qemu.HostBase, "ram_size": c.Qemu.RAMSize, "kernel_dtb": c.Qemu.KernelDTB} {
			if _, err := ParseUint(s); s != "" && err != nil {
				return fmt.Errorf("%w: qemu.%s: %v", ErrInvalid, key, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalid, c.Source)
	}

	for name, s := range c.Symbols {
		if _, err := ParseUint(s); err != nil {
			return fmt.Errorf("%w: symbol %s: %v", ErrInvalid, name, err)
		}
	}
	b := c.Bounds
	if b.MaxProcesses <= 0 || b.MaxModulesPerProcess <= 0 || b.MaxThreadsPerProcess <= 0 {
		return fmt.Errorf("%w: bounds must be positive", ErrInvalid)
	}
	if _, err := logging.ParseSeverity(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ParseUint accepts decimal, 0x hex and _ digit separators.
func ParseUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(s), "_", ""), 0, 64)
}

func (c *Config) InventoryBounds() inventory.Bounds {
	return inventory.Bounds{
		MaxProcesses:         c.Bounds.MaxProcesses,
		MaxModulesPerProcess: c.Bounds.MaxModulesPerProcess,
		MaxThreadsPerProcess: c.Bounds.MaxThreadsPerProcess,
		MaxNameLen:           c.Bounds.MaxNameLen,
		MaxModuleNameLen:     c.Bounds.MaxModuleNameLen,
	}
}

// SymbolTable returns the configured symbols. Invalid addresses are
// rejected by Validate.
func (c *Config) SymbolTable() *symbols.Table {
	t := symbols.NewTable()
	for name, s := range c.Symbols {
		if addr, err := ParseUint(s); err == nil {
			t.Add(name, vmi.Addr(addr))
		}
	}
	return t
}

// Logger builds the logger described by the log section. Messages go to
// the rotated file when one is set and to console otherwise.
func (c *Config) Logger(console io.Writer) (*logging.ZapLogger, error) {
	level, err := logging.ParseSeverity(c.Log.Level)
	if err != nil {
		return nil, err
	}
	if c.Log.File == "" {
		return logging.NewZapLoggerWithWriter(console, console, level), nil
	}
	return logging.NewFileLogger(logging.FileOptions{
		Filename:   c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}, level), nil
}

// OffsetTable selects the offset profile: the configured one, else
// fallback, else the built-in Windows 10 x64 layout. profile_file is
// loaded from fs first so it may shadow built-ins.
func (c *Config) OffsetTable(fs afero.Fs, fallback string) (offsets.Table, error) {
	reg, err := c.Registry(fs)
	if err != nil {
		return offsets.Table{}, err
	}
	name := c.Profile
	if name == "" {
		name = fallback
	}
	if name == "" {
		name = offsets.Win10x64.Name()
	}
	return reg.Lookup(name)
}

// Registry returns the built-in profiles plus those in profile_file.
func (c *Config) Registry(fs afero.Fs) (*offsets.Registry, error) {
	reg := offsets.NewRegistry()
	if c.ProfileFile != "" {
		if _, err := reg.LoadFile(fs, c.ProfileFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

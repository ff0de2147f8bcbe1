package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/config"
)

// app carries what the commands share. Every root command gets its own
// viper so tests can run them side by side.
type app struct {
	fs      afero.Fs
	v       *viper.Viper
	cfgFile string
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs, v: config.NewViper(fs)}

	rootCmd := &cobra.Command{
		Use:   "vmiscan",
		Short: "Inventory the processes of a Windows guest",
		Long: `vmiscan walks the kernel process list of a Windows guest and reports
its processes with their loaded modules and threads.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.vmiscan.yaml)")
	pf.String("log-level", "", "log level: debug, info, warning or error")
	pf.String("log-file", "", "write logs to a rotated file instead of stderr")
	pf.String("profile", "", "offset profile name")
	pf.String("profile-file", "", "YAML file with additional offset profiles")
	for key, name := range map[string]string{
		"log.level":    "log-level",
		"log.file":     "log-file",
		"profile":      "profile",
		"profile_file": "profile-file",
	} {
		cobra.CheckErr(a.v.BindPFlag(key, pf.Lookup(name)))
	}

	rootCmd.AddCommand(a.newSnapshotCmd(), a.newProfilesCmd())
	return rootCmd
}

// load reads the merged configuration.
func (a *app) load() (*config.Config, error) {
	return config.Load(a.v, a.cfgFile)
}

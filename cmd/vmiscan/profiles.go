package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/offsets"
)

func (a *app) newProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles [name]",
		Short: "List offset profiles, or print one as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			reg, err := cfg.Registry(a.fs)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				for _, name := range reg.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			tbl, err := reg.Lookup(args[0])
			if err != nil {
				return err
			}
			return offsets.Encode(cmd.OutOrStdout(), tbl)
		},
	}
	return cmd
}

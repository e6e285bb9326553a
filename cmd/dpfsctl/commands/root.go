// Package commands implements dpfsctl's cobra command tree: an
// operator-facing companion to the cmd/dpfs-* device-emulation
// binaries, limited to the things an operator needs outside the
// dataplane itself (config validation, a version stamp).
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags; "dev" otherwise.
var Version = "dev"

// NewRoot builds the dpfsctl root command.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "dpfsctl",
		Short: "Operator CLI for the DPFS device-emulation dataplanes",
	}
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the dpfsctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		},
	}
}

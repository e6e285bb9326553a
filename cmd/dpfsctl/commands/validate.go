package commands

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dpfs-project/dpfs/internal/config"
)

func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "load and validate a dpfs configuration document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			printSummary(cmd, cfg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the TOML configuration file")
	return cmd
}

func printSummary(cmd *cobra.Command, cfg *config.Config) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Section", "Field", "Value"})

	rows := [][]string{
		{"logging", "level", cfg.Logging.Level},
		{"logging", "format", cfg.Logging.Format},
		{"metrics", "enabled", fmt.Sprintf("%v", cfg.Metrics.Enabled)},
		{"snap_hal", "tag", cfg.SnapHAL.Tag},
		{"snap_hal", "nthreads", fmt.Sprintf("%d", cfg.SnapHAL.NThreads)},
		{"local_mirror", "dir", cfg.LocalMirror.Dir},
		{"nfs", "server", cfg.NFS.Server},
		{"nfs", "export", cfg.NFS.Export},
		{"kv", "name", cfg.KV.Name},
		{"rvfs", "remote_uri", cfg.RVFS.RemoteURI},
	}
	for _, row := range rows {
		if row[2] == "" {
			continue
		}
		table.Append(row)
	}
	table.Render()
}

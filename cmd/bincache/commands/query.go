package commands

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
	"go.trai.ch/bincache/internal/app"
	"go.trai.ch/bincache/internal/ui/output"
	"go.trai.ch/bincache/internal/ui/style"
)

func (c *CLI) newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the specs available on the configured mirrors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")
			specs, err := c.app.List(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			for _, s := range specs {
				_, _ = fmt.Fprintf(out, "%s %s\n", output.Paint(out, style.Dot, style.Slate), s)
			}
			return nil
		},
	}
	cmd.Flags().Bool("refresh", false, "Refresh the mirror indexes before listing")
	return cmd
}

func (c *CLI) newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [spec files...]",
		Short: "Report specs whose archives are missing or stale on the mirrors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mirrors, _ := cmd.Flags().GetStringSlice("mirror")
			rebuildOnErrors, _ := cmd.Flags().GetBool("rebuild-on-error")
			outputFile, _ := cmd.Flags().GetString("output-file")
			report, err := c.app.Check(cmd.Context(), args, app.CheckOptions{
				Mirrors:         mirrors,
				RebuildOnErrors: rebuildOnErrors,
				OutputFile:      outputFile,
			})
			out := output.New(cmd.OutOrStdout())
			for _, url := range slices.Sorted(maps.Keys(report)) {
				for _, s := range report[url].RebuildSpecs {
					_, _ = fmt.Fprintf(out, "%s %s /%s on %s\n",
						output.Paint(out, style.Warning, style.Yellow), s.ShortSpec, s.Hash, url)
				}
			}
			return err
		},
	}
	cmd.Flags().StringSliceP("mirror", "m", nil, "Mirror names or URLs to check")
	cmd.Flags().Bool("rebuild-on-error", false, "Treat unreachable mirrors as needing a rebuild")
	cmd.Flags().StringP("output-file", "o", "", "Write the rebuild report as JSON")
	return cmd
}

func (c *CLI) newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Regenerate the package index of a mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mirror, _ := cmd.Flags().GetString("mirror")
			return c.app.Index(cmd.Context(), mirror)
		},
	}
	cmd.Flags().StringP("mirror", "m", "", "Mirror name or URL")
	return cmd
}

func (c *CLI) newNameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name <spec file>",
		Short: "Print the archive name of a spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := c.app.Name(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
}

func (c *CLI) newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <spec file>",
		Short: "Download the archive of a spec from the first mirror hosting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("path")
			path, err := c.app.Download(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringP("path", "p", ".", "Directory to download into")
	return cmd
}

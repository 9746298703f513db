package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/bincache/internal/app"
)

func (c *CLI) newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [spec files...]",
		Short: "Install specs and their runtime dependencies from the mirrors",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return nil
			}
			force, _ := cmd.Flags().GetBool("force")
			unsigned, _ := cmd.Flags().GetBool("unsigned")
			allowRoot, _ := cmd.Flags().GetBool("allow-root")
			return c.app.Install(cmd.Context(), args, app.InstallOptions{
				Force:     force,
				Unsigned:  unsigned,
				AllowRoot: allowRoot,
			})
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Reinstall requested specs over existing prefixes")
	cmd.Flags().BoolP("unsigned", "u", false, "Skip signature verification")
	cmd.Flags().BoolP("allow-root", "a", false, "Allow text files that still reference the install root")
	return cmd
}

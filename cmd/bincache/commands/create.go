package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/bincache/internal/app"
)

func (c *CLI) newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [spec files...]",
		Short: "Package installed prefixes and publish them to a mirror",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return nil
			}
			flags := cmd.Flags()
			mirror, _ := flags.GetString("mirror")
			force, _ := flags.GetBool("force")
			rel, _ := flags.GetBool("rel")
			unsigned, _ := flags.GetBool("unsigned")
			allowRoot, _ := flags.GetBool("allow-root")
			key, _ := flags.GetString("key")
			rebuildIndex, _ := flags.GetBool("rebuild-index")
			return c.app.Create(cmd.Context(), args, app.CreateOptions{
				Mirror:       mirror,
				Force:        force,
				Relative:     rel,
				Unsigned:     unsigned,
				AllowRoot:    allowRoot,
				Key:          key,
				RebuildIndex: rebuildIndex,
			})
		},
	}
	cmd.Flags().StringP("mirror", "m", "", "Mirror name or URL to publish to")
	cmd.Flags().BoolP("force", "f", false, "Overwrite archives already on the mirror")
	cmd.Flags().BoolP("rel", "r", false, "Rewrite embedded paths relative to the prefix")
	cmd.Flags().BoolP("unsigned", "u", false, "Publish without signing")
	cmd.Flags().BoolP("allow-root", "a", false, "Allow text files that still reference the install root")
	cmd.Flags().StringP("key", "k", "", "Signing key to use")
	cmd.Flags().Bool("rebuild-index", false, "Regenerate the mirror index after publishing")
	return cmd
}

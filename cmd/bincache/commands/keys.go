package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/bincache/internal/app"
)

func (c *CLI) newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List, trust or export the public signing keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mirror, _ := cmd.Flags().GetString("mirror")
			trust, _ := cmd.Flags().GetBool("trust")
			export, _ := cmd.Flags().GetBool("export")
			urls, err := c.app.Keys(cmd.Context(), app.KeysOptions{
				Mirror: mirror,
				Trust:  trust,
				Export: export,
			})
			if err != nil {
				return err
			}
			for _, u := range urls {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
	cmd.Flags().StringP("mirror", "m", "", "Mirror name or URL")
	cmd.Flags().BoolP("trust", "t", false, "Add the listed keys to the public keyring")
	cmd.Flags().Bool("export", false, "Publish the local public keys to the mirror")
	cmd.MarkFlagsMutuallyExclusive("trust", "export")
	return cmd
}

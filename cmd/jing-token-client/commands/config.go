package commands

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/jingrm/jing-token-client/cmd/jing-token-client/config"
	"github.com/jingrm/jing-token-client/internal/constants"
	"github.com/jingrm/jing-token-client/internal/helpers"
	"github.com/jingrm/jing-token-client/internal/securefile"
)

// NewConfigCommand creates the config command group
func NewConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the per-user configuration file",
	}
	configCmd.AddCommand(newConfigInitCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		dir   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Ask for an Infura key and local API settings and write config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = config.UserDir()
			}
			path := filepath.Join(dir, constants.ConfigFileName+".yaml")
			if securefile.Exists(path) && !force {
				return errors.Newf("%s already exists (use --force to overwrite)", path)
			}

			// one buffered reader so consecutive prompts don't lose input
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			key, err := helpers.PromptInfuraAPIKey(in, out)
			if err != nil {
				return err
			}
			port := helpers.PromptLineWithDefault(in, out, "Local API port", "8765")
			approval := strings.ToLower(helpers.PromptLineWithDefault(in, out, "Transaction approval (prompt/auto)", config.ApprovalPrompt))

			written, err := config.WriteUserConfig(dir, config.UserSettings{
				InfuraKey: key,
				Port:      port,
				Approval:  approval,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Config written to %s\n", written)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to write config.yaml into (default: ~/.config/"+constants.AppName+")")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config.yaml")
	return cmd
}

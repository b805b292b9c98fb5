package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jingrm/jing-token-client/internal/constants"
	"github.com/jingrm/jing-token-client/internal/ethwallet"
	"github.com/jingrm/jing-token-client/internal/helpers"
)

type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// passwordEnv lets scripts unlock the wallet without a terminal.
const passwordEnv = constants.EnvPrefix + "_WALLET_PASSWORD"

var walletFile string

// NewRootCommand creates the root command
func NewRootCommand(info BuildInfo) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           constants.AppName,
		Short:         "Local wallet and dashboard API for the JING token",
		Long:          `jing-token-client runs a local wallet and a JSON API for viewing, buying, transferring and administering the JING (JINGRM) ERC20 token.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", info.Version, info.Commit, info.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&walletFile, "wallet-file", "", "Path to the encrypted wallet file (default: user config dir)")
	rootCmd.AddCommand(NewServeCommand(info))
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewWalletCommand())
	rootCmd.AddCommand(NewNetworkCommand())
	rootCmd.AddCommand(NewAssetCommand())
	rootCmd.AddCommand(NewConfigCommand())

	return rootCmd
}

// Execute runs the root command
func Execute(info BuildInfo) {
	rootCmd := NewRootCommand(info)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openWalletStore() (*ethwallet.Store, error) {
	if walletFile != "" {
		return ethwallet.NewStoreAt(walletFile), nil
	}
	return ethwallet.NewStore()
}

func readPassword(prompt string) ([]byte, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return []byte(pw), nil
	}
	return helpers.PromptPassword(prompt)
}

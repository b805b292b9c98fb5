package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jingrm/jing-token-client/internal/assets"
	"github.com/jingrm/jing-token-client/internal/constants"
	"github.com/jingrm/jing-token-client/internal/networks"
)

// NewNetworkCommand creates the network command group
func NewNetworkCommand() *cobra.Command {
	networkCmd := &cobra.Command{
		Use:   "network",
		Short: "Inspect networks added through the wallet",
	}
	networkCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List persisted networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := networks.NewManager()
			if err != nil {
				return err
			}
			list, err := mgr.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				_, _ = fmt.Fprintln(out, "no networks added")
				return nil
			}
			for _, n := range list {
				printNetwork(out, n)
			}
			return nil
		},
	})
	networkCmd.AddCommand(&cobra.Command{
		Use:   "remove <chainIdHex>",
		Short: "Forget a network added through the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := networks.NewManager()
			if err != nil {
				return err
			}
			n, ok, err := mgr.FindByChainIdHex(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "network %s not found\n", args[0])
				return nil
			}
			if err := mgr.RemoveNetworkByChainIdHex(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s (%s)\n", n.Name, n.ChainIdHex)
			return nil
		},
	})
	return networkCmd
}

// NewAssetCommand creates the asset command group
func NewAssetCommand() *cobra.Command {
	var network string
	assetCmd := &cobra.Command{
		Use:   "asset",
		Short: "Inspect tokens registered through wallet_watchAsset",
	}
	assetCmd.PersistentFlags().StringVar(&network, "network", constants.DefaultTargetNetwork, "Network the assets belong to")

	assetCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List watched tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := assets.NewManager()
			if err != nil {
				return err
			}
			list, err := mgr.ListForNetwork(cmd.Context(), network)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				_, _ = fmt.Fprintf(out, "no assets on %s\n", network)
				return nil
			}
			for _, a := range list {
				_, _ = fmt.Fprintf(out, "%-10s %s decimals=%d\n", a.Symbol, a.Address, a.Decimals)
			}
			return nil
		},
	})
	assetCmd.AddCommand(&cobra.Command{
		Use:   "remove <address>",
		Short: "Stop watching a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := assets.NewManager()
			if err != nil {
				return err
			}
			if err := mgr.RemoveAsset(cmd.Context(), network, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s from %s\n", args[0], network)
			return nil
		},
	})
	return assetCmd
}

func printNetwork(out io.Writer, n networks.Network) {
	_, _ = fmt.Fprintf(out, "%-12s chainId=%d (%s)", n.Name, n.ChainId, n.ChainIdHex)
	if n.Explorer != "" {
		_, _ = fmt.Fprintf(out, " explorer=%s", n.Explorer)
	}
	_, _ = fmt.Fprintf(out, " rpcs=%d\n", len(n.Rpcs))
}

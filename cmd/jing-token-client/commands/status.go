package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clientconfig "github.com/jingrm/jing-token-client/cmd/jing-token-client/config"
	"github.com/jingrm/jing-token-client/internal/chains"
	"github.com/jingrm/jing-token-client/internal/token"
	"github.com/jingrm/jing-token-client/internal/units"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	var (
		address string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the token's on-chain state without unlocking the wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" && !common.IsHexAddress(address) {
				return errors.Newf("invalid address %q", address)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runStatus(ctx, address)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Also print the token balance of this address")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall RPC timeout")
	return cmd
}

func runStatus(ctx context.Context, address string) error {
	cfg, err := clientconfig.Load()
	if err != nil {
		return errors.Wrap(err, "failed to parse config")
	}
	cfg.DropEmptyRPCs()

	chainSvc, err := chains.NewService(ctx, chains.ChainConfig{
		Chains:               cfg.EthNetworks,
		DefaultActiveNetwork: cfg.Token.TargetNetwork,
		PreferredRPCName:     cfg.EthNetworks.ActiveRPC,
		DialTimeout:          cfg.ClientSettings.DialTimeout,
	})
	if err != nil {
		return err
	}
	defer func() { _ = chainSvc.Close() }()

	backend, chain, err := chainSvc.Active()
	if err != nil {
		return err
	}
	c, err := token.NewContract(common.HexToAddress(cfg.Token.ContractAddress), backend)
	if err != nil {
		return err
	}

	name, err := c.Name(ctx)
	if err != nil {
		return errors.Wrap(err, "read name")
	}
	symbol, err := c.Symbol(ctx)
	if err != nil {
		return errors.Wrap(err, "read symbol")
	}
	decimals, err := c.Decimals(ctx)
	if err != nil {
		return errors.Wrap(err, "read decimals")
	}
	supply, err := c.TotalSupply(ctx)
	if err != nil {
		return errors.Wrap(err, "read totalSupply")
	}
	price, err := c.TokenPrice(ctx)
	if err != nil {
		return errors.Wrap(err, "read tokenPrice")
	}
	owner, err := c.Owner(ctx)
	if err != nil {
		return errors.Wrap(err, "read owner")
	}
	ethBal, err := backend.BalanceAt(ctx, c.Address(), nil)
	if err != nil {
		return errors.Wrap(err, "read contract balance")
	}

	frac := cfg.ClientSettings.DisplayFractions
	fmt.Printf("Network:        %s (%s) via %s\n", chain.NetworkName, chain.ChainIDHex, chain.RPCName)
	fmt.Printf("Contract:       %s\n", c.Address().Hex())
	if chain.Explorer != "" {
		fmt.Printf("Explorer:       %s/address/%s\n", chain.Explorer, c.Address().Hex())
	}
	fmt.Printf("Token:          %s (%s), %d decimals\n", name, symbol, decimals)
	fmt.Printf("Total supply:   %s %s\n", units.FormatUnits(supply, decimals, frac), symbol)
	fmt.Printf("Price:          %s ETH\n", units.FormatEther(price, 18))
	fmt.Printf("Rate:           %s %s per ETH\n", units.RatePerEth(price, decimals, frac), symbol)
	fmt.Printf("Owner:          %s\n", owner.Hex())
	fmt.Printf("Contract ETH:   %s\n", units.FormatEther(ethBal, frac))

	if address != "" {
		holder := common.HexToAddress(address)
		bal, err := c.BalanceOf(ctx, holder)
		if err != nil {
			return errors.Wrap(err, "read balanceOf")
		}
		fmt.Printf("Balance:        %s %s (%s)\n", units.FormatUnits(bal, decimals, frac), symbol, holder.Hex())
	}
	return nil
}

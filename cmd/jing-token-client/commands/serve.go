package commands

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	clientconfig "github.com/jingrm/jing-token-client/cmd/jing-token-client/config"
	"github.com/jingrm/jing-token-client/internal/assets"
	"github.com/jingrm/jing-token-client/internal/chains"
	clienthttp "github.com/jingrm/jing-token-client/internal/http"
	"github.com/jingrm/jing-token-client/internal/metrics"
	"github.com/jingrm/jing-token-client/internal/networks"
	"github.com/jingrm/jing-token-client/internal/provider"
	"github.com/jingrm/jing-token-client/internal/session"
)

// NewServeCommand creates the serve command
func NewServeCommand(info BuildInfo) *cobra.Command {
	var autoApprove bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Unlock the wallet and serve the dashboard API on localhost",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(info, autoApprove)
		},
	}
	cmd.Flags().BoolVar(&autoApprove, "yes", false, "Approve every wallet request without prompting")
	return cmd
}

func runServe(info BuildInfo, autoApprove bool) error {
	log.Info("jing-token-client",
		"version", info.Version,
		"commit", info.Commit,
		"build_date", info.BuildDate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := clientconfig.Load()
	if err != nil {
		return errors.Wrap(err, "failed to parse config")
	}
	cfg.DropEmptyRPCs()

	kr, err := loadKeyring()
	if err != nil {
		return err
	}
	signers, err := kr.Signers()
	if err != nil {
		return err
	}

	netMgr, err := networks.NewManager()
	if err != nil {
		return err
	}
	assetMgr, err := assets.NewManager()
	if err != nil {
		return err
	}
	mergePersistedNetworks(ctx, cfg, netMgr)

	chainSvc, err := chains.NewService(ctx, chains.ChainConfig{
		Chains:               cfg.EthNetworks,
		DefaultActiveNetwork: cfg.EthNetworks.ActiveNetwork,
		PreferredRPCName:     cfg.EthNetworks.ActiveRPC,
		DialTimeout:          cfg.ClientSettings.DialTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "failed to init chains")
	}
	defer func() {
		if cerr := chainSvc.Close(); cerr != nil {
			log.Error("failed to close chain clients", "error", cerr)
		}
	}()

	var approver provider.Approver = provider.NewPromptApprover(os.Stdin, os.Stderr)
	if autoApprove || cfg.ClientSettings.Approval == clientconfig.ApprovalAuto {
		log.Warn("wallet requests are approved automatically")
		approver = provider.AutoApprove{}
	}

	wallet, err := provider.NewLocal(provider.LocalConfig{
		Chains:   chainSvc,
		Signers:  signers,
		Approver: approver,
		Networks: netMgr,
		Assets:   assetMgr,
	})
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	sess, err := session.New(wallet, cfg.SessionConfig(), session.WithRecorder(metrics.NewSessionMetrics(reg)))
	if err != nil {
		return err
	}
	defer sess.Close()

	if _, err := sess.Resume(ctx); err != nil {
		log.Warn("resume wallet session failed", "error", err)
	}

	routerCfg := clienthttp.RouterConfig{
		AllowedOrigins: cfg.ClientSettings.AllowedOrigins,
		Registry:       reg,
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
	}
	if cs := cfg.ClientSettings; cs.APIRateLimit > 0 {
		routerCfg.Limiter = rate.NewLimiter(rate.Limit(cs.APIRateLimit), max(cs.APIRateBurst, 1))
	}
	if dir := cfg.ClientSettings.UIDir; dir != "" {
		routerCfg.UI = os.DirFS(dir)
		log.Info("serving dashboard", "dir", dir)
	}
	router := clienthttp.NewRouter(
		clienthttp.NewHandler(sess, wallet, cfg.ClientSettings.DisplayFractions),
		routerCfg,
	)

	addr := net.JoinHostPort(cfg.ClientSettings.LocalHost, cfg.ClientSettings.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("dashboard API listening", "addr", addr, "wallet", kr.Addresses()[0].Hex())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	} else {
		log.Info("HTTP server gracefully stopped")
	}
	return nil
}

// mergePersistedNetworks adds chains the user approved through
// wallet_addEthereumChain in earlier runs.
func mergePersistedNetworks(ctx context.Context, cfg *clientconfig.Config, netMgr *networks.Manager) {
	saved, err := netMgr.List(ctx)
	if err != nil {
		log.Warn("failed to load saved networks", "path", netMgr.Path(), "error", err)
		return
	}
	known := make(map[uint64]bool, len(cfg.EthNetworks.Networks))
	for _, n := range cfg.EthNetworks.Networks {
		known[n.ChainID] = true
	}
	for _, n := range saved {
		if _, ok := cfg.EthNetworks.Networks[n.Name]; ok || known[n.ChainId] {
			continue
		}
		nc := n.ToConfig()
		if len(nc.RPCURLs()) == 0 {
			continue
		}
		cfg.EthNetworks.Networks[n.Name] = nc
		known[n.ChainId] = true
	}
}

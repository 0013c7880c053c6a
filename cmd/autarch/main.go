// Autarch is a multi-agent autonomous trading runtime for Solana
// devnet: declarative rule agents over a shared market feed, with an
// SSE dashboard stream and market-control endpoints.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autarch-dev/autarch/internal/config"
	"github.com/autarch-dev/autarch/internal/market"
	"github.com/autarch-dev/autarch/internal/rpc"
	"github.com/autarch-dev/autarch/internal/runtime"
	"github.com/autarch-dev/autarch/internal/server"
	"github.com/autarch-dev/autarch/internal/sse"
	"github.com/autarch-dev/autarch/internal/wallet"
	"github.com/autarch-dev/autarch/pkg/types"
)

// initialFundingLamports is the best-effort airdrop/distribution size
// for unfunded agents at startup.
const initialFundingLamports = 2 * types.LamportsPerSol

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	configDir := flag.String("config-dir", "", "directory of agent definition files")
	staticDir := flag.String("static-dir", "./web", "static dashboard directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	if *configDir != "" {
		cfg.Agents.Dir = *configDir
	}
	agents, err := config.LoadAgentsDir(cfg.Agents.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load agent definitions")
	}

	seed, err := resolveSeed(cfg.Wallet.Seed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve wallet seed")
	}

	hub := sse.NewHub(config.NewLogger("sse"))

	rpcClient := rpc.NewClient(rpc.Config{
		Endpoints:           cfg.RPC.EndpointList(),
		MaxRetries:          cfg.RPC.MaxRetries,
		BaseDelay:           time.Duration(cfg.RPC.BaseDelayMs) * time.Millisecond,
		HealthCheckInterval: time.Duration(cfg.RPC.HealthCheckIntervalMs) * time.Millisecond,
		Logger:              config.NewLogger("rpc"),
	})
	defer rpcClient.Cleanup()

	wallets, err := wallet.NewManager(seed, rpcClient, config.NewLogger("wallet"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize wallet manager")
	}

	provider := buildMarketProvider(cfg)
	rt := runtime.New(provider, wallets, config.NewLogger("runtime"))

	// Mode transitions reach the dashboard through the runtime.
	rpcClient.SetOnSimulationModeChange(rt.NotifySimulationMode)

	for _, a := range agents {
		if _, err := rt.AddAgent(a.ID, a.Config); err != nil {
			log.Fatal().Err(err).Str("file", a.FileName).Msg("Failed to register agent")
		}
	}

	fundAgents(context.Background(), wallets, agents)

	srv := server.NewServer(server.Config{
		Port:      cfg.Server.Port,
		Runtime:   rt,
		Hub:       hub,
		RPCMode:   func() string { return string(rpcClient.Mode()) },
		StaticDir: *staticDir,
	})

	hub.Start()
	rt.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()

		log.Info().Msg("Shutting down")
		rt.Stop()
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Runtime exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

// resolveSeed decodes the hex master seed, generating a random one
// when none is configured. The seed value itself is never logged.
func resolveSeed(hexSeed string) ([]byte, error) {
	if hexSeed == "" {
		seed := make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generating random seed: %w", err)
		}
		log.Warn().Msg("AUTARCH_SEED not set; generated an ephemeral wallet seed")
		return seed, nil
	}
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("seed must be hex encoded")
	}
	return seed, nil
}

func buildMarketProvider(cfg *config.Config) market.Provider {
	sim := market.NewSimulator(cfg.Market.Seed)
	if cfg.Market.DemoMode {
		log.Info().Msg("Market provider: simulator (demo mode)")
		return sim
	}
	log.Info().Msg("Market provider: live with simulated fallback")
	return market.NewLiveSource(cfg.Market.PriceURL, sim, config.NewLogger("market"))
}

// fundAgents tops up zero-balance agents, first from the faucet for
// the treasury, then treasury transfers to children. Best effort: a
// failed grant only logs.
func fundAgents(ctx context.Context, wallets *wallet.Manager, agents []config.AgentFile) {
	treasury, err := wallets.GetBalance(ctx, wallet.TreasuryID)
	if err == nil && treasury.Lamports == 0 {
		if _, err := wallets.RequestAirdrop(ctx, wallet.TreasuryID, uint64(len(agents)+1)*initialFundingLamports); err != nil {
			log.Warn().Err(err).Msg("Treasury airdrop failed")
		}
	}

	for _, a := range agents {
		bal, err := wallets.GetBalance(ctx, a.ID)
		if err != nil {
			log.Warn().Err(err).Int("agentId", a.ID).Msg("Balance check failed, skipping funding")
			continue
		}
		if bal.Lamports > 0 {
			continue
		}
		if _, err := wallets.DistributeSol(ctx, a.ID, initialFundingLamports); err != nil {
			log.Warn().Err(err).Int("agentId", a.ID).Msg("Initial funding failed")
		}
	}
}

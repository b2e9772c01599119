// Package app provides top-level lifecycle management for the settlement
// daemon. It wires the infrastructure, composes the settlement engine, and
// runs the HTTP API, WebSocket hub, and archiver until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	s3blob "github.com/openmatch/nftx/internal/blob/s3"
	"github.com/openmatch/nftx/internal/chain"
	"github.com/openmatch/nftx/internal/config"
	"github.com/openmatch/nftx/internal/domain"
	"github.com/openmatch/nftx/internal/exchange"
	"github.com/openmatch/nftx/internal/fees"
	"github.com/openmatch/nftx/internal/match"
	"github.com/openmatch/nftx/internal/notify"
	"github.com/openmatch/nftx/internal/server"
	"github.com/openmatch/nftx/internal/server/handler"
	"github.com/openmatch/nftx/internal/server/ws"
	"github.com/openmatch/nftx/internal/treasury"
	"github.com/openmatch/nftx/internal/validate"
)

// archiveInterval is how often the previous month's settlement export is
// refreshed.
const archiveInterval = 12 * time.Hour

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the daemon's goroutines, and blocks
// until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting settlement daemon",
		slog.Uint64("chain_id", a.cfg.Chain.ChainID),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	exch, feeEngine, err := a.buildExchange(deps)
	if err != nil {
		return fmt.Errorf("app: build exchange: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub mirrors settlement and cancellation events.
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Monthly settlement archive, only with blob storage configured.
	if deps.BlobWriter != nil {
		archiver := s3blob.NewArchiver(deps.BlobWriter, deps.SettlementStore, a.logger)
		g.Go(func() error {
			return archiver.Run(ctx, archiveInterval)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, exch, feeEngine, hub)
	}

	return g.Wait()
}

// buildExchange composes the settlement engine from the wired infrastructure.
func (a *App) buildExchange(deps *Dependencies) (*exchange.Exchange, *fees.Engine, error) {
	allow := validate.NewAllowList(a.cfg.AllowList.Currencies, a.cfg.AllowList.Complications)
	validator := validate.New(deps.Verifier, deps.NonceStore, allow, a.logger)
	matcher := match.NewEngine(a.logger)

	// Royalty sources in priority order: admin-configured split, on-chain
	// ERC-2981, then the external royalty engine.
	sources := []domain.RoyaltySource{
		fees.NewFeeSplitSource(deps.FeeSplitStore),
		chain.NewERC2981Source(deps.Caller),
	}
	if a.cfg.Fees.RoyaltyEngineAddr != "" {
		sources = append(sources, chain.NewEngineSource(
			deps.Caller,
			common.HexToAddress(a.cfg.Fees.RoyaltyEngineAddr),
			deps.RoyaltyCache,
			a.logger,
		))
	}

	var tiers domain.StakeTierProvider
	if a.cfg.Fees.StakerAddr != "" {
		staker := chain.NewStaker(deps.Caller, common.HexToAddress(a.cfg.Fees.StakerAddr))
		tiers = fees.NewCachedTierProvider(staker, deps.StakeCache, a.logger)
	} else {
		tiers = fees.NewStaticTierProvider(nil)
	}

	feeEngine := fees.NewEngine(tiers, sources, a.logger)
	if err := feeEngine.UpdateCuratorFeeBps(a.cfg.Fees.CuratorFeeBps); err != nil {
		return nil, nil, err
	}
	for name, bps := range a.cfg.Fees.StakeDiscountBps {
		level, ok := stakeLevelByName(name)
		if !ok {
			a.logger.Warn("unknown stake tier in config, skipping", slog.String("tier", name))
			continue
		}
		if err := feeEngine.UpdateEffectiveFeeBps(level, bps); err != nil {
			return nil, nil, err
		}
	}

	escrow := common.HexToAddress(a.cfg.Exchange.EscrowAddress)
	curator := common.HexToAddress(a.cfg.Exchange.CuratorAddress)
	treas := treasury.New(deps.TreasuryStore, deps.Assets, deps.LockManager, escrow, curator, a.logger)

	var notifier exchange.Notifier
	if a.cfg.Notify.WebhookURL != "" {
		minPrice := new(big.Int)
		if a.cfg.Notify.MinPriceWei != "" {
			if _, ok := minPrice.SetString(a.cfg.Notify.MinPriceWei, 10); !ok {
				return nil, nil, fmt.Errorf("app: notify.min_price_wei %q is not a decimal integer", a.cfg.Notify.MinPriceWei)
			}
		}
		notifier = notify.NewWebhookSender(
			a.cfg.Notify.WebhookURL,
			minPrice,
			time.Duration(a.cfg.Notify.TimeoutSecond)*time.Second,
			a.logger,
		)
	}

	exch := exchange.New(exchange.Deps{
		Codec:       deps.Codec,
		Verifier:    deps.Verifier,
		Validator:   validator,
		Matcher:     matcher,
		Fees:        feeEngine,
		Treasury:    treas,
		Assets:      deps.Assets,
		Nonces:      deps.NonceStore,
		Splits:      deps.FeeSplitStore,
		Settlements: deps.SettlementStore,
		Admins:      deps.Admins,
		Bus:         deps.SignalBus,
		Notifier:    notifier,
		Curator:     curator,
		Logger:      a.logger,
	})
	return exch, feeEngine, nil
}

// startHTTPServer adds the API server goroutines to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, exch *exchange.Exchange, feeEngine *fees.Engine, hub *ws.Hub) {
	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.logger),
		Orders:      handler.NewOrderHandler(exch, a.logger),
		Settlements: handler.NewSettlementHandler(exch, deps.SettlementStore, a.logger),
		Fees:        handler.NewFeeHandler(exch, feeEngine, deps.TreasuryStore, deps.FeeSplitStore, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, s3blob.ArchivePath, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimitPerMin,
		RateWindow:  time.Minute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down settlement daemon")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// stakeLevelByName maps the config tier names onto stake levels.
func stakeLevelByName(name string) (domain.StakeLevel, bool) {
	switch name {
	case "none":
		return domain.StakeLevelNone, true
	case "bronze":
		return domain.StakeLevelBronze, true
	case "silver":
		return domain.StakeLevelSilver, true
	case "gold":
		return domain.StakeLevelGold, true
	case "platinum":
		return domain.StakeLevelPlatinum, true
	default:
		return 0, false
	}
}

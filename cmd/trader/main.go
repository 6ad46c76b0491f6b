// Package main runs the live momentum trading engine against a Solana
// RPC/WebSocket pair.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"solana-momentum-bot/internal/bus"
	"solana-momentum-bot/internal/config"
	"solana-momentum-bot/internal/engine"
	"solana-momentum-bot/internal/featurelog"
	"solana-momentum-bot/internal/feed"
	"solana-momentum-bot/internal/journal"
	jmemory "solana-momentum-bot/internal/journal/memory"
	jpostgres "solana-momentum-bot/internal/journal/postgres"
	"solana-momentum-bot/internal/ml"
	"solana-momentum-bot/internal/notify"
	"solana-momentum-bot/internal/observability"
	"solana-momentum-bot/internal/risk"
	"solana-momentum-bot/internal/solana"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to TOML configuration")
	flag.Parse()

	logger := log.New(os.Stdout, "[trader] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	if cfg.RPCEndpoint == "" || cfg.WSEndpoint == "" {
		logger.Fatal("rpc_endpoint and ws_endpoint are required")
	}

	metrics := observability.NewMetrics("")

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing exit", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	if err := run(ctx, cfg, metrics, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("trader error: %v", err)
	}
	logger.Println("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *log.Logger) error {
	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)

	ws, err := solana.DialWS(ctx, cfg.WSEndpoint, nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer ws.Close()

	wsFeed := feed.NewWSFeed(ws, logger)

	assessor := risk.NewAssessor(rpc, cfg.Admission.BundlerPrograms, logger)
	devProbe := risk.NewDevExitProbe(rpc, logger)

	// Mirror the bounded risk semaphore into the gauge.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.RiskProbesInFlight.Set(float64(assessor.InFlight()))
			}
		}
	}()

	var buyModel, sellModel engine.Predictor
	if cfg.ML.Enabled {
		buyModel = loadModel(filepath.Join(cfg.ML.ModelDir, "buy.json"), logger)
		sellModel = loadModel(filepath.Join(cfg.ML.ModelDir, "sell.json"), logger)
	}

	var featureLog, predLog *featurelog.Writer
	if cfg.Logging.FeatureLogging {
		featureLog, err = featurelog.NewWriter(cfg.Logging.FeatureLogPath, logger)
		if err != nil {
			return fmt.Errorf("open feature log: %w", err)
		}
		defer featureLog.Close()
	}
	if cfg.Logging.PredLogging {
		predLog, err = featurelog.NewWriter(cfg.Logging.PredLogPath, logger)
		if err != nil {
			return fmt.Errorf("open prediction log: %w", err)
		}
		defer predLog.Close()
	}

	var tradeStore journal.TradeStore
	if cfg.PostgresDSN != "" {
		pool, err := jpostgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		tradeStore, err = jpostgres.NewTradeStore(ctx, pool)
		if err != nil {
			return fmt.Errorf("postgres journal: %w", err)
		}
		logger.Println("Trade journal: postgres")
	} else {
		tradeStore = jmemory.NewTradeStore()
		logger.Println("Trade journal: in-memory")
	}

	eng := engine.New(engine.Options{
		Config:     cfg,
		Assessor:   assessor,
		DevProbe:   devProbe,
		Tracker:    wsFeed,
		Journal:    tradeStore,
		FeatureLog: featureLog,
		PredLog:    predLog,
		BuyModel:   buyModel,
		SellModel:  sellModel,
		Metrics:    metrics,
		Logger:     logger,
	})

	// Execution adapter subscription: lossless, every signal exactly once.
	execCh, cancelExec := eng.Signals(1024, bus.Lossless)
	defer cancelExec()
	go func() {
		for sig := range execCh {
			logger.Printf("[exec] %s %s price=%.10f reason=%s", sig.Action, sig.Mint, sig.Price, sig.Reason)
		}
	}()

	// Dashboard mirroring over Redis: drop-oldest, best-effort.
	if cfg.RedisAddr != "" {
		publisher, err := notify.NewRedisPublisher(ctx, cfg.RedisAddr, logger)
		if err != nil {
			logger.Printf("Redis dashboard disabled: %v", err)
		} else {
			defer publisher.Close()
			sigCh, cancelSig := eng.Signals(256, bus.DropOldest)
			pnlCh, cancelPnL := eng.PnL(256, bus.DropOldest)
			defer cancelSig()
			defer cancelPnL()
			go publisher.Run(ctx, sigCh, pnlCh)
		}
	}

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- wsFeed.Run(ctx)
	}()

	engineErr := make(chan error, 1)
	go func() {
		engineErr <- eng.Run(ctx, wsFeed.Pools(), wsFeed.Prices())
	}()

	select {
	case err := <-feedErr:
		if err == nil {
			return errors.New("feed stopped")
		}
		return fmt.Errorf("feed stopped: %w", err)
	case err := <-engineErr:
		return err
	case <-ctx.Done():
		// Let the engine drain before returning.
		<-engineErr
		return ctx.Err()
	}
}

// loadModel loads one GBM dump, downgrading to heuristics on failure.
func loadModel(path string, logger *log.Logger) engine.Predictor {
	model, err := ml.LoadModel(path)
	if err != nil {
		logger.Printf("Model %s unavailable, falling back to heuristics: %v", path, err)
		return nil
	}
	logger.Printf("Loaded model %s (%d trees)", path, len(model.TreeInfo))
	return model
}

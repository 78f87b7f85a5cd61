package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"adaptive-trading-bot/config"
	"adaptive-trading-bot/internal/api"
	"adaptive-trading-bot/internal/ai/ml"
	"adaptive-trading-bot/internal/ai/sentiment"
	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/database"
	"adaptive-trading-bot/internal/engine"
	"adaptive-trading-bot/internal/events"
	"adaptive-trading-bot/internal/logging"
	"adaptive-trading-bot/internal/patterns"
	"adaptive-trading-bot/internal/position"
	"adaptive-trading-bot/internal/regime"
	"adaptive-trading-bot/internal/risk"
	sig "adaptive-trading-bot/internal/signal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("configuration load failed")
	}

	logger := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := buildBrokerClient(cfg, logger)

	var db *database.DB
	var repo *database.Repository
	if cfg.Database.Enabled {
		db, err = database.NewDB(ctx, cfg.Database.Config, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		repo = database.NewRepository(db)
	} else {
		logger.Warn().Msg("database disabled, trades will not be persisted")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	states := database.NewStateStore(redisClient, logger)

	bus := events.NewBus()

	sentimentAnalyzer := sentiment.NewAnalyzer(&cfg.Sentiment, logger)
	if cfg.Sources.Sentiment {
		go sentimentAnalyzer.Run(ctx)
	}

	detector := patterns.NewDetector(nil)
	var optional []sig.Source
	if cfg.Sources.ML {
		optional = append(optional, sig.NewMLSource(ml.NewPredictor(&cfg.ML)))
	}
	if cfg.Sources.Patterns {
		optional = append(optional, sig.NewPatternSource(detector))
	}
	if cfg.Sources.Sentiment {
		optional = append(optional, sig.NewSentimentSource(sentimentAnalyzer))
	}
	fuser := sig.NewFuser(&cfg.Fusion, sig.NewTechnicalSource(nil), optional, logger)

	profiles, err := risk.DefaultProfileTable().Validate()
	if err != nil {
		logger.Fatal().Err(err).Msg("risk profile table invalid")
	}

	eng := engine.New(&cfg.Engine, engine.Dependencies{
		Client:     client,
		Classifier: regime.NewClassifier(nil),
		Profiles:   profiles,
		Sizer:      risk.NewSizer(&cfg.Sizing),
		Fuser:      fuser,
		Patterns:   detector,
		Stops:      position.NewStopManager(nil),
		TPs:        position.NewTPManager(nil),
		Lifecycle:  position.NewLifecycleManager(nil),
		Planner:    position.NewPlanner(&cfg.Groups),
		Repo:       repo,
		States:     states,
		Bus:        bus,
	}, logger)

	var health broker.HealthReporter
	if hr, ok := client.(broker.HealthReporter); ok {
		health = hr
	}
	server := api.NewServer(cfg.Server, eng, db, repo, health, bus, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("web server failed")
		}
	}()

	if err := eng.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("engine start failed")
	}

	logger.Info().
		Str("addr", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Bool("dry_run", cfg.Engine.DryRun).
		Msg("adaptive trading bot running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	eng.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("web server shutdown error")
	}
	logger.Info().Msg("shutdown complete")
}

// buildBrokerClient wires the venue connection. Only the scripted mock ships
// in this repository; a live venue adapter plugs in behind broker.Client.
func buildBrokerClient(cfg *config.Config, logger zerolog.Logger) broker.Client {
	if !cfg.Broker.MockMode {
		logger.Fatal().Msg("no live venue adapter is configured; set broker.mock_mode")
	}

	mock := broker.NewMockClient(10000)
	for _, symbol := range cfg.Engine.Symbols {
		seedMockSymbol(mock, symbol, cfg.Engine.Timeframe)
	}
	logger.Warn().Msg("running against the in-memory mock venue")

	retryCfg := broker.DefaultRetryConfig()
	return broker.NewRetryingClient(mock, retryCfg, logger)
}

// seedMockSymbol scripts a plausible random walk so the loop has data to
// classify and trade against in mock mode.
func seedMockSymbol(mock *broker.MockClient, symbol, timeframe string) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	price := 100 + rng.Float64()*900
	bars := make([]broker.Bar, 300)
	start := time.Now().Add(-time.Duration(len(bars)) * 15 * time.Minute)
	for i := range bars {
		drift := (rng.Float64() - 0.48) * price * 0.004
		open := price
		price += drift
		high := open + rng.Float64()*price*0.002
		low := open - rng.Float64()*price*0.002
		if price > high {
			high = price
		}
		if price < low {
			low = price
		}
		bars[i] = broker.Bar{
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    price,
			Volume:   500 + rng.Float64()*1000,
		}
	}
	mock.SetHistory(symbol, timeframe, bars)
	mock.SetPrice(symbol, price)
	mock.SetSpec(&broker.SymbolSpec{
		Symbol:    symbol,
		TickSize:  0.01,
		TickValue: 0.01,
		MinLot:    0.001,
		MaxLot:    10000,
		LotStep:   0.001,
	})
}

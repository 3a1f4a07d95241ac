package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/config"
	"github.com/Aidin1998/venuesim/internal/market"
	"github.com/Aidin1998/venuesim/internal/market/gateway"
	"github.com/Aidin1998/venuesim/internal/market/instruments"
	"github.com/Aidin1998/venuesim/internal/server"
	"github.com/Aidin1998/venuesim/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	var paths []string
	if p := os.Getenv("VENUESIM_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	mgr := market.NewManager(sugar)
	for _, mc := range cfg.Markets {
		opts, err := marketOptions(mc)
		if err != nil {
			zapLogger.Fatal("Failed to assemble market", zap.String("market", mc.Name), zap.Error(err))
		}
		if _, err := mgr.StartMarket(opts); err != nil {
			zapLogger.Fatal("Failed to start market", zap.String("market", mc.Name), zap.Error(err))
		}
	}

	apiServer := server.New(mgr, zapLogger)
	go func() {
		zapLogger.Info("Starting control server", zap.String("addr", cfg.Server.Addr))
		if err := apiServer.Run(cfg.Server.Addr); err != nil {
			zapLogger.Fatal("Failed to start control server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down...")

	mgr.StopAll()

	zapLogger.Info("Server exited properly")
}

// marketOptions turns a config block into assembled market options, loading
// the instrument file when one is configured.
func marketOptions(mc config.MarketConfig) (market.Options, error) {
	var table *instruments.Table
	if mc.InstrumentFile != "" {
		t, err := instruments.LoadCSV(mc.InstrumentFile)
		if err != nil {
			return market.Options{}, err
		}
		table = t
	}
	return market.Options{
		Name:          mc.Name,
		Type:          mc.Type,
		SweepInterval: mc.SweepInterval,
		Parties:       mc.Parties,
		Instruments:   table,
		Gateways: gateway.Gateways{
			OrderEntry: gateway.NewMemorySession(mc.OrderEntry),
			DropCopy:   gateway.NewMemorySession(mc.DropCopy),
			PostTrade:  gateway.NewMemorySession(mc.PostTrade),
		},
	}, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"launchpad/native/ido"
	"launchpad/observability/logging"
	"launchpad/services/idod/config"
	"launchpad/services/idod/oracle"
	"launchpad/services/idod/server"
	"launchpad/state"
	"launchpad/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/idod/config.yaml", "path to idod configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("IDOD_ENV"))
	logger := logging.Setup("idod", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("idod: load config: %v", err)
	}

	owner, err := parseAddress(cfg.Owner)
	if err != nil {
		log.Fatalf("idod: owner: %v", err)
	}
	usdc, err := parseAddress(cfg.USDC)
	if err != nil {
		log.Fatalf("idod: usdc: %v", err)
	}
	usdt, err := parseAddress(cfg.USDT)
	if err != nil {
		log.Fatalf("idod: usdt: %v", err)
	}

	db, err := storage.NewLevelDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("idod: open database: %v", err)
	}
	defer db.Close()

	saleState := state.NewSaleState(db)
	bank := state.NewBank(saleState)

	feed := oracle.New(cfg.Oracle.Endpoint, cfg.Oracle.Key)
	priceSource := ido.NewPriceSource(feed)
	if cfg.Oracle.MaxAge.Duration > 0 {
		priceSource.SetMaxAge(cfg.Oracle.MaxAge.Duration)
	}

	engine := ido.NewEngine()
	engine.SetState(saleState)
	engine.SetOwner(owner)
	engine.SetStableToken(ido.CurrencyUSDC, usdc, bank.Token(usdc))
	engine.SetStableToken(ido.CurrencyUSDT, usdt, bank.Token(usdt))
	engine.SetNativeTransferor(bank)
	engine.SetPriceSource(priceSource)
	engine.SetEmitter(server.NewEmitter(logger))
	if err := engine.Ready(); err != nil {
		log.Fatalf("idod: engine wiring: %v", err)
	}
	usdcAddr, usdtAddr := engine.StableTokens()
	logger.Info("sale engine ready",
		"owner", common.Address(owner).Hex(),
		"usdc", common.Address(usdcAddr).Hex(),
		"usdt", common.Address(usdtAddr).Hex())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go feed.Run(ctx, cfg.Oracle.Interval.Duration, logger)

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		Owner:         owner,
		AdminToken:    cfg.AdminToken,
	}, engine, saleState, bank, logger)
	if err != nil {
		log.Fatalf("idod: server: %v", err)
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("idod: server stopped: %v", err)
	}
	logger.Info("shut down cleanly")
}

func parseAddress(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("malformed address %q", raw)
	}
	return [20]byte(common.HexToAddress(trimmed)), nil
}

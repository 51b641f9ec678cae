package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/alert"
	"github.com/seigneur/takefi-sub000/pkg/btc"
	"github.com/seigneur/takefi-sub000/pkg/monitor"
	"github.com/seigneur/takefi-sub000/pkg/orchestrator"
	"github.com/seigneur/takefi-sub000/pkg/tracker"
	"github.com/seigneur/takefi-sub000/pkg/venue"
	"github.com/seigneur/takefi-sub000/rest"
	"github.com/seigneur/takefi-sub000/utils"
)

// satScale converts satoshis to the 18-decimal wrapped BTC unit.
var satScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)

func main() {
	configPath := os.Getenv("TAKEFI_CONFIG")
	if configPath == "" {
		configPath = utils.DefaultConfigPath()
	}
	envConfig, err := utils.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	logger, err := utils.NewLogger(os.Getenv("DEBUG") != "")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	network, err := utils.NetworkParams(envConfig.Network)
	if err != nil {
		panic(err)
	}

	str, err := utils.LoadDB(envConfig)
	if err != nil {
		panic(err)
	}

	// Load keys
	keys, err := utils.LoadKeys(envConfig)
	if err != nil {
		panic(err)
	}
	venueKey, err := keys.GetKey(utils.PurposeVenue, 0, 0)
	if err != nil {
		panic(err)
	}
	signer, err := venueKey.ECDSA()
	if err != nil {
		panic(err)
	}

	chainClient := btc.NewClient(envConfig.BtcAPI, envConfig.BtcNodeRPC, logger)
	venueClient := venue.NewClient(envConfig.VenueURL, envConfig.VenueWS)

	orderValidity := time.Duration(envConfig.OrderValidityMinutes) * time.Minute
	if orderValidity == 0 {
		orderValidity = 30 * time.Minute
	}

	notifier := alert.NewNoop()
	if envConfig.DiscordToken != "" {
		notifier, err = alert.NewDiscord(envConfig.DiscordToken, envConfig.DiscordChannel, logger)
		if err != nil {
			panic(err)
		}
	}

	tokens := map[string]common.Address{}
	for symbol, address := range envConfig.Tokens {
		tokens[symbol] = common.HexToAddress(address)
	}

	mon := monitor.New(chainClient, logger, 0)
	trk := tracker.New(venueClient, logger, 0, 24*time.Hour)
	orch := orchestrator.New(orchestrator.Config{
		Network:       network,
		SellToken:     common.HexToAddress(envConfig.SellToken),
		Tokens:        tokens,
		DefaultToken:  envConfig.DefaultToken,
		SatScale:      satScale,
		OrderValidity: orderValidity,
	}, str, chainClient, mon, trk, venueClient, signer, notifier, logger)
	defer orch.Stop()

	if err := orch.ResumeWatches(context.Background()); err != nil {
		logger.Error("failed to resume pending watches", zap.Error(err))
	}

	addr := envConfig.Addr
	if addr == "" {
		addr = ":8080"
	}
	server := rest.NewServer(orch, envConfig.JWTSecret, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		cancel()
	}()

	if err := server.Run(ctx, addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/mikromon/mikromon/internal/alerter"
	"github.com/mikromon/mikromon/internal/api"
	"github.com/mikromon/mikromon/internal/config"
	"github.com/mikromon/mikromon/internal/notifier"
	"github.com/mikromon/mikromon/internal/poller"
	"github.com/mikromon/mikromon/internal/registry"
	"github.com/mikromon/mikromon/internal/stream"
	"github.com/mikromon/mikromon/internal/types"
	"github.com/mikromon/mikromon/internal/version"
)

func main() {
	configPath := flag.String("config", "/config/mikromon.yaml", "Path to monitoring configuration")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Device passwords and channel tokens come from the environment; a local
	// .env is a development convenience and its absence is not an error.
	godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("version", version.GetVersion()).
		Str("commit", version.GetCommit()).
		Logger()

	logger.Info().Msg("Starting mikromon")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("config_path", *configPath).
			Msg("Failed to load configuration")
	}

	logger.Info().
		Int("devices", len(cfg.Devices)).
		Int("netwatch", len(cfg.Netwatch)).
		Int("pppoe", len(cfg.Pppoe)).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := registry.NewConfigProvider(cfg)
	engine := alerter.NewEngine(cfg, logger)
	dispatcher := notifier.NewDispatcher(cfg, logger)
	hub := stream.NewHub(cfg.Global.KeepaliveInterval, logger)

	go hub.Run(ctx)
	go engine.RunEscalation(ctx, cfg.Global.EscalationInterval)
	go engine.RunSweep(ctx, cfg.Global.SweepInterval)

	// Fan the engine's lifecycle stream out to the notification channels and
	// the live subscribers. Alert events go only to authorized viewers; poll
	// results and state changes are public.
	resolve := func(id string) (registry.Entity, bool) {
		for _, ent := range provider.Snapshot() {
			if ent.ID == id {
				return ent, true
			}
		}
		return registry.Entity{}, false
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-engine.Events():
				dispatcher.Handle(ev, resolve)
				switch ev.Kind {
				case types.EventPollResult, types.EventEntityState:
					hub.Broadcast(string(ev.Kind), ev)
				default:
					hub.BroadcastToAuthorized(string(ev.Kind), ev, nil)
				}
			}
		}
	}()

	p := poller.New(cfg, provider, engine, logger)
	go p.Run(ctx)

	apiServer := api.NewServer(engine, hub, cfg, provider, logger, strconv.Itoa(cfg.Global.APIPort))
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- apiServer.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Int("port", cfg.Global.APIPort).Msg("mikromon running")

	select {
	case <-sigChan:
		logger.Info().Msg("Shutting down...")
	case err := <-apiErr:
		if err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}

	cancel()
	dispatcher.Wait()
	logger.Info().Msg("mikromon stopped")
}

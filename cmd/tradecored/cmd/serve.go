package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tradecore/internal/appctx"
	"tradecore/internal/applog"
	"tradecore/internal/config"
	"tradecore/internal/domain"
	"tradecore/internal/eventbus"
	"tradecore/internal/repository/memstore"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the matching engines and account services until signaled",
		RunE: func(c *cobra.Command, args []string) error {
			return runServe(c.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &codedError{code: exitConfigError, err: err}
	}
	if err := cfg.Validate(); err != nil {
		return &codedError{code: exitConfigError, err: err}
	}

	applog.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log.Info().Str("config", configPath).Int("markets", len(cfg.Markets)).Msg("tradecored starting")

	app, err := appctx.New(cfg, memstore.New())
	if err != nil {
		return &codedError{code: exitConfigError, err: err}
	}
	defer app.Shutdown()

	alerts := app.Bus.Subscribe(string(domain.TopicSystemAlert), 16, eventbus.PolicyDropOldest)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			log.Info().Msg("tradecored shutting down on signal")
			return nil
		case evt := <-alerts:
			payload, _ := evt.Payload.(domain.SystemAlertPayload)
			log.Error().Str("market", string(evt.Market)).Str("kind", string(payload.Kind)).Str("message", payload.Message).Msg("fatal matching engine alert received")
			return &codedError{code: exitEngineHalted, err: domain.NewError(payload.Kind, payload.Message)}
		}
	}
}

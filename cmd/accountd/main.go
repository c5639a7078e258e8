// Command accountd runs the account example Component: a commands
// Consumer that opens accounts and handles deposit/withdraw requests, and
// a transactions Consumer that applies confirmed deposits to balances.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eventframe/eventframe/internal/account"
	"github.com/eventframe/eventframe/pkg/eventframe"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := configFromEnv()
	pool, err := eventframe.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to message store")
	}
	defer pool.Close()

	gw := eventframe.NewActuator(pool)

	commandsConsumer, err := account.BuildCommandsConsumer(eventframe.ConsumerOptions{
		BatchSize:              1000,
		PositionUpdateInterval: 100,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build commands consumer")
	}

	transactionsConsumer, err := account.BuildTransactionsConsumer(eventframe.ConsumerOptions{
		BatchSize:              1000,
		PositionUpdateInterval: 100,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build transactions consumer")
	}

	component := eventframe.NewComponent(gw,
		eventframe.Bind(commandsConsumer, account.Settings{}),
		eventframe.Bind(transactionsConsumer, account.Settings{}),
	)

	log.Info().Msg("accountd starting")
	if err := component.Start(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("accountd exiting")
	}
	log.Info().Msg("accountd stopped")
}

func configFromEnv() eventframe.ConnectionConfig {
	if url := os.Getenv("MESSAGE_STORE_URL"); url != "" {
		return eventframe.ConnectionConfig{URL: url}
	}
	return eventframe.ConnectionConfig{
		Host:           envOr("MESSAGE_STORE_HOST", "localhost"),
		Port:           5432,
		Username:       envOr("MESSAGE_STORE_USER", "message_store"),
		Password:       envOr("MESSAGE_STORE_PASSWORD", "message_store"),
		Database:       envOr("MESSAGE_STORE_DATABASE", "message_store"),
		MaxConnections: 10,
		MinConnections: 2,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

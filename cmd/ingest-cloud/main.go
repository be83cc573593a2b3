// Command ingest-cloud runs C5: the cloud-side intake relay, authenticating
// tenants by token and enforcing per-tenant rate shaping ahead of the same
// bus queue the edge listener (C4) feeds.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/munbon/telemetry-core/internal/pkg/bus"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/env"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/logging"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/router"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/tracing"
	"github.com/munbon/telemetry-core/internal/pkg/ingest/cloudrelay"
)

const serviceName = "munbon-telemetry-ingest-cloud"
const serviceVersion = "dev"

func main() {
	ctx, logger := logging.NewLogger(context.Background(), serviceName, serviceVersion)
	logger = logging.WithComponent(logger, "ingest-cloud")

	cleanup, err := tracing.Init(ctx, logger, serviceName, serviceVersion)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer cleanup()

	amqpURL := env.GetVariableOrDie(logger, "RABBITMQ_URL")
	b, err := bus.NewAMQPBus(bus.DefaultAMQPConfig(amqpURL), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to message bus")
	}
	defer b.Close()

	tokenFilePath := env.GetVariableOrDefault(logger, "TOKEN_TABLE_PATH", "/opt/munbon/config/tokens.yaml")
	tokens, err := cloudrelay.LoadTokenTable(tokenFilePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load token table")
	}
	tokens.Start(5 * time.Minute)
	defer tokens.Stop()

	h := cloudrelay.NewHandler(b, tokens, logger)

	r := router.New(serviceName)
	h.Routes(r)

	port := env.GetVariableOrDefault(logger, "SERVICE_PORT", "8080")
	addr := fmt.Sprintf(":%s", port)
	logger.Info().Str("addr", addr).Msg("ingest-cloud listening")

	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal().Err(err).Msg("ingest-cloud server stopped")
	}
}

// Command ingest-edge runs C4: the tolerant edge HTTP listener that
// accepts vendor telemetry payloads at the field-gateway tier and
// enqueues them onto the bus for the ingest consumer to decode.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/munbon/telemetry-core/internal/pkg/bus"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/env"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/logging"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/router"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/tracing"
	"github.com/munbon/telemetry-core/internal/pkg/ingest/edgehttp"
)

const serviceName = "munbon-telemetry-ingest-edge"
const serviceVersion = "dev"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, logger := logging.NewLogger(rootCtx, serviceName, serviceVersion)
	logger = logging.WithComponent(logger, "ingest-edge")

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

	h := edgehttp.NewHandler(b, logger)
	go h.RetrySpool(ctx)

	r := router.New(serviceName)
	h.Routes(r)

	port := env.GetVariableOrDefault(logger, "SERVICE_PORT", "8080")
	addr := fmt.Sprintf(":%s", port)
	logger.Info().Str("addr", addr).Msg("ingest-edge listening")

	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal().Err(err).Msg("ingest-edge server stopped")
	}
}

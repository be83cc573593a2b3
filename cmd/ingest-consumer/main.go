// Command ingest-consumer runs C6: the worker pool that decodes raw
// envelopes off the bus, updates the sensor registry, writes readings to
// the store, and fans derived events out to C7's real-time hub.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/munbon/telemetry-core/internal/pkg/alerting"
	"github.com/munbon/telemetry-core/internal/pkg/bus"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/env"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/logging"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/router"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/tracing"
	"github.com/munbon/telemetry-core/internal/pkg/ingest/cloudrelay"
	"github.com/munbon/telemetry-core/internal/pkg/ingest/consumer"
	"github.com/munbon/telemetry-core/internal/pkg/realtime"
	"github.com/munbon/telemetry-core/internal/pkg/registry"
	"github.com/munbon/telemetry-core/internal/pkg/store"
	"github.com/munbon/telemetry-core/pkg/types"
)

const serviceName = "munbon-telemetry-ingest-consumer"
const serviceVersion = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, logger := logging.NewLogger(ctx, serviceName, serviceVersion)
	logger = logging.WithComponent(logger, "ingest-consumer")

	cleanup, err := tracing.Init(ctx, logger, serviceName, serviceVersion)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer cleanup()

	s := setupStoreOrDie(logger)
	reg, err := registry.New(s)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init registry")
	}

	amqpURL := env.GetVariableOrDie(logger, "RABBITMQ_URL")
	b, err := bus.NewAMQPBus(bus.DefaultAMQPConfig(amqpURL), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to message bus")
	}
	defer b.Close()

	hub := realtime.NewHub(logger)
	wireMirrors(hub, logger)

	resolver := consumer.MultiResolver{
		types.TransportEdgeHTTP:  consumer.EdgeFamilyResolver{},
		types.TransportCloudHTTP: consumer.CloudFamilyResolver{Lookup: loadTokenTableOrDie(logger)},
	}

	workers := workerCount(logger)
	c := consumer.New(b, reg, s, resolver, hub, workers, logger)

	r := router.New(serviceName)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mountRealtimeAndStats(r, hub, c)

	port := env.GetVariableOrDefault(logger, "SERVICE_PORT", "8081")
	go func() {
		addr := fmt.Sprintf(":%s", port)
		logger.Info().Str("addr", addr).Msg("ingest-consumer health/realtime listener up")
		if err := http.ListenAndServe(addr, r); err != nil {
			logger.Fatal().Err(err).Msg("ingest-consumer http server stopped")
		}
	}()

	logger.Info().Int("workers", workers).Msg("ingest-consumer running")
	if err := c.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ingest-consumer stopped with error")
	}
}

func setupStoreOrDie(logger zerolog.Logger) store.Store {
	var connector store.ConnectorFunc
	if host := os.Getenv("SQLDB_HOST"); host != "" {
		connector = store.NewPostgreSQLConnector(logger)
	} else {
		logger.Info().Msg("no sql database configured, using builtin sqlite instead")
		connector = store.NewSQLiteConnector(logger)
	}

	s, err := store.New(connector)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to store")
	}
	return s
}

func loadTokenTableOrDie(logger zerolog.Logger) *cloudrelay.TokenTable {
	path := env.GetVariableOrDefault(logger, "TOKEN_TABLE_PATH", "/opt/munbon/config/tokens.yaml")
	tokens, err := cloudrelay.LoadTokenTable(path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load token table")
	}
	tokens.Start(5 * time.Minute)
	return tokens
}

func wireMirrors(hub *realtime.Hub, logger zerolog.Logger) {
	if brokerURL := env.GetVariableOrDefault(logger, "MQTT_BROKER_URL", ""); brokerURL != "" {
		mirror, err := realtime.NewMQTTMirror(brokerURL, serviceName, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect MQTT mirror, continuing without it")
		} else {
			hub.AddMirror(mirror)
		}
	}

	notificationsPath := env.GetVariableOrDefault(logger, "ALERT_SUBSCRIBERS_PATH", "")
	if notificationsPath == "" {
		return
	}
	f, err := os.Open(notificationsPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open alert subscriber config, continuing without it")
		return
	}
	defer f.Close()

	cfg, err := alerting.LoadConfiguration(f)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load alert subscriber config, continuing without it")
		return
	}
	sender, err := alerting.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to init alert sender, continuing without it")
		return
	}
	hub.AddMirror(sender)
}

func mountRealtimeAndStats(r chi.Router, hub *realtime.Hub, c *consumer.Consumer) {
	r.Get("/ws", hub.ServeWS)
	r.Get("/api/stats/ingest", func(w http.ResponseWriter, _ *http.Request) {
		duplicates, deadLettered := c.Stats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"duplicates":%d,"deadLettered":%d,"subscribers":%d}`,
			duplicates, deadLettered, hub.SubscriberCount())
	})
}

func workerCount(logger zerolog.Logger) int {
	raw := env.GetVariableOrDefault(logger, "CONSUMER_WORKERS", strconv.Itoa(consumer.DefaultWorkers))
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return consumer.DefaultWorkers
	}
	return n
}

// Command query-api runs C8 behind C9's API-key authority: the uniform
// read endpoints dashboards and partners consume.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/env"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/logging"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/router"
	"github.com/munbon/telemetry-core/internal/pkg/infrastructure/tracing"
	"github.com/munbon/telemetry-core/internal/pkg/presentation/apikey"
	"github.com/munbon/telemetry-core/internal/pkg/presentation/readapi"
	"github.com/munbon/telemetry-core/internal/pkg/registry"
	"github.com/munbon/telemetry-core/internal/pkg/store"
	"github.com/rs/zerolog"
)

const serviceName = "munbon-telemetry-query-api"
const serviceVersion = "dev"

func main() {
	ctx, logger := logging.NewLogger(context.Background(), serviceName, serviceVersion)
	logger = logging.WithComponent(logger, "query-api")

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

	auth, err := apikey.New(ctx, s, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init API-key authority")
	}

	api := readapi.New(s, reg, auth, logger)

	r := router.New(serviceName)
	api.Routes(r)

	port := env.GetVariableOrDefault(logger, "SERVICE_PORT", "8082")
	addr := fmt.Sprintf(":%s", port)
	logger.Info().Str("addr", addr).Msg("query-api listening")

	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal().Err(err).Msg("query-api server stopped")
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

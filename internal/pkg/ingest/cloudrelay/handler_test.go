package cloudrelay

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/munbon/telemetry-core/internal/pkg/bus"
)

func writeTokenFile(t *testing.T, yaml string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "tokens-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(yaml); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func TestIngestRejectsRevokedToken(t *testing.T) {
	is := is.New(t)
	path := writeTokenFile(t, `
tokens:
  - token: munbon-ridr-water-level
    tenant: munbon
    family: water_level
    revoked: true
`)
	tokens, err := LoadTokenTable(path)
	is.NoErr(err)

	b := bus.NewMemoryBus(5)
	h := NewHandler(b, tokens, zerolog.Nop())
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/sensor-data/water-level/munbon-ridr-water-level", "application/json", strings.NewReader(`{"macAddress":"x"}`))
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusUnauthorized)
}

func TestIngestAcceptsValidTokenAndEnqueues(t *testing.T) {
	is := is.New(t)
	path := writeTokenFile(t, `
tokens:
  - token: munbon-ridr-water-level
    tenant: munbon
    family: water_level
    revoked: false
    deviceConfig:
      interval: "60"
`)
	tokens, err := LoadTokenTable(path)
	is.NoErr(err)

	b := bus.NewMemoryBus(5)
	h := NewHandler(b, tokens, zerolog.Nop())
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/sensor-data/water-level/munbon-ridr-water-level", "application/json", strings.NewReader(`{"macAddress":"x"}`))
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusOK)

	attrs, err := http.Get(srv.URL + "/api/v1/munbon-ridr-water-level/attributes")
	is.NoErr(err)
	defer attrs.Body.Close()
	is.Equal(attrs.StatusCode, http.StatusOK)
}

func TestAttributesUnknownTokenIs404(t *testing.T) {
	is := is.New(t)
	path := writeTokenFile(t, "tokens: []\n")
	tokens, err := LoadTokenTable(path)
	is.NoErr(err)

	b := bus.NewMemoryBus(5)
	h := NewHandler(b, tokens, zerolog.Nop())
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/unknown/attributes")
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

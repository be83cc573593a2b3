package apikey

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/munbon/telemetry-core/internal/pkg/store"
	"github.com/munbon/telemetry-core/pkg/types"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, store.Store) {
	t.Helper()
	s, err := store.New(store.NewSQLiteConnector(zerolog.Nop()))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	a, err := New(context.Background(), s, zerolog.Nop())
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	return a, s
}

func createTestKey(t *testing.T, s store.Store, rawKey string, tier types.Tier, families []types.Family) {
	t.Helper()
	err := s.CreateApiKey(context.Background(), types.ApiKey{
		ID:              rawKey,
		Tenant:          "tenant-1",
		Tier:            tier,
		AllowedFamilies: families,
		Active:          true,
		CreatedAt:       time.Now(),
	}, hashKey(rawKey))
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
}

func passThrough() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRejectsMissingKey(t *testing.T) {
	is := is.New(t)
	a, _ := newTestAuthenticator(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil)
	w := httptest.NewRecorder()
	a.Middleware(passThrough()).ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusUnauthorized)
}

func TestMiddlewareRejectsUnknownKey(t *testing.T) {
	is := is.New(t)
	a, _ := newTestAuthenticator(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil)
	req.Header.Set("X-API-Key", "does-not-exist")
	w := httptest.NewRecorder()
	a.Middleware(passThrough()).ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusUnauthorized)
}

func TestMiddlewareAllowsScopedFamily(t *testing.T) {
	is := is.New(t)
	a, s := newTestAuthenticator(t)
	createTestKey(t, s, "good-key", types.TierFree, []types.Family{types.FamilyWaterLevel})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/water-levels/aggregated", nil)
	req.Header.Set("X-API-Key", "good-key")
	w := httptest.NewRecorder()
	a.Middleware(passThrough()).ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusOK)
}

func TestMiddlewareForbidsOutOfScopeFamily(t *testing.T) {
	is := is.New(t)
	a, s := newTestAuthenticator(t)
	createTestKey(t, s, "moisture-only-key", types.TierFree, []types.Family{types.FamilyMoisture})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/water-levels/aggregated", nil)
	req.Header.Set("X-API-Key", "moisture-only-key")
	w := httptest.NewRecorder()
	a.Middleware(passThrough()).ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusForbidden)
}

func TestMiddlewareRejectsExpiredKey(t *testing.T) {
	is := is.New(t)
	a, s := newTestAuthenticator(t)
	past := time.Now().Add(-time.Hour)
	err := s.CreateApiKey(context.Background(), types.ApiKey{
		ID:        "expired-key",
		Tenant:    "tenant-1",
		Tier:      types.TierFree,
		Active:    true,
		ExpiresAt: &past,
		CreatedAt: time.Now(),
	}, hashKey("expired-key"))
	is.NoErr(err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil)
	req.Header.Set("X-API-Key", "expired-key")
	w := httptest.NewRecorder()
	a.Middleware(passThrough()).ServeHTTP(w, req)

	is.Equal(w.Code, http.StatusUnauthorized)
}

func TestMiddlewareRateLimitsFreeTierAfterQuota(t *testing.T) {
	is := is.New(t)
	a, s := newTestAuthenticator(t)
	createTestKey(t, s, "burstable-key", types.TierFree, []types.Family{types.FamilyWaterLevel})

	var lastCode int
	for i := 0; i < tierBucket[types.TierFree]+1; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/water-levels/aggregated", nil)
		req.Header.Set("X-API-Key", "burstable-key")
		w := httptest.NewRecorder()
		a.Middleware(passThrough()).ServeHTTP(w, req)
		lastCode = w.Code
	}

	is.Equal(lastCode, http.StatusTooManyRequests)
}

func TestKeyCacheRoundTrips(t *testing.T) {
	is := is.New(t)
	c := newKeyCache(time.Minute)
	key := types.ApiKey{ID: "k1", Active: true}

	_, ok := c.get("missing")
	is.True(!ok)

	c.set("h1", key)
	got, ok := c.get("h1")
	is.True(ok)
	is.Equal(got.ID, "k1")
}

package cloudrelay

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/munbon/telemetry-core/internal/pkg/bus"
	"github.com/munbon/telemetry-core/pkg/types"
)

// Handler implements C5: the same enqueue contract as C4, plus a token
// table lookup (tenant/family/revocation) and per-tenant rate shaping.
type Handler struct {
	bus     bus.Bus
	tokens  *TokenTable
	log     zerolog.Logger
	limiter *tenantLimiters
}

func NewHandler(b bus.Bus, tokens *TokenTable, log zerolog.Logger) *Handler {
	return &Handler{
		bus:     b,
		tokens:  tokens,
		log:     log,
		limiter: newTenantLimiters(100, 200), // default 100 req/s, burst 200, per spec §4.5
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/sensor-data/{family}/{token}", h.ingest)
	r.Get("/api/v1/{token}/attributes", h.attributes)
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	entry, ok := h.tokens.Lookup(token)
	if !ok || entry.Revoked {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unknown or revoked token", "statusCode": 401})
		return
	}

	if !h.limiter.allow(entry.Tenant) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "rate limited", "statusCode": 429})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "read failed", "statusCode": 500})
		return
	}

	if len(body) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	env := types.RawEnvelope{
		ReceivedAt:  time.Now().UTC(),
		Transport:   types.TransportCloudHTTP,
		Token:       token,
		SourceIP:    r.Header.Get("X-Forwarded-For"),
		VendorBody:  body,
		ContentType: "application/json",
	}

	if err := h.bus.Publish(r.Context(), env); err != nil {
		h.log.Error().Err(err).Msg("failed to enqueue envelope, device should retry")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "enqueue failed", "statusCode": 503})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// attributes returns the static per-token device-configuration blob
// already present in the token table row (spec §4.5).
func (h *Handler) attributes(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	entry, ok := h.tokens.Lookup(token)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown token", "statusCode": 404})
		return
	}
	writeJSON(w, http.StatusOK, entry.DeviceConfig)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// tenantLimiters keys one token-bucket limiter per tenant, grounded on the
// rate-shaping requirement of spec §4.5 ("100 req/s, burst 200").
type tenantLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

func newTenantLimiters(rps float64, burst int) *tenantLimiters {
	return &tenantLimiters{limiters: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (t *tenantLimiters) allow(tenant string) bool {
	t.mu.Lock()
	l, ok := t.limiters[tenant]
	if !ok {
		l = rate.NewLimiter(rate.Limit(t.rps), t.burst)
		t.limiters[tenant] = l
	}
	t.mu.Unlock()
	return l.Allow()
}

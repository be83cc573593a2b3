// Package edgehttp implements C4: the tolerant edge HTTP listener. It
// accepts vendor payloads at POST /api/sensor-data/{family}/{token},
// sheds provably-empty bodies with a 200 rather than forwarding them, and
// enqueues everything else onto the bus for C6 to decode and store.
package edgehttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/munbon/telemetry-core/internal/pkg/bus"
	"github.com/munbon/telemetry-core/pkg/types"
)

// Handler wires the edge intake's endpoints onto a chi router.
type Handler struct {
	bus     bus.Bus
	shed    *sheddingTable
	ring    *spoolRing
	log     zerolog.Logger
}

func NewHandler(b bus.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		bus:  b,
		shed: newSheddingTable(),
		ring: newSpoolRing(10_000),
		log:  log,
	}
}

// Routes mounts the endpoint group onto r, matching the teacher's
// router.New-style constructor usage at each binary's main().
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/sensor-data/{family}/{token}", h.ingest)
	r.Get("/health", h.health)
	r.Get("/api/stats/empty-payloads", h.emptyPayloadStats)
	r.Get("/api/stats/spool-ring", h.spoolRingStats)
	r.Handle("/metrics", promhttp.Handler())
}

// retryRingInterval is how often RetrySpool wakes up to try draining the
// spool ring back onto the bus.
const retryRingInterval = 5 * time.Second

// RetrySpool blocks, periodically draining the spool ring and republishing
// each envelope once the bus accepts writes again. It is the bridge spec
// §4.4 describes the ring as existing for: envelopes spooled during a bus
// outage are not just held until restart, they get a chance to flush as
// soon as Publish starts succeeding again. Any envelope that fails to
// republish (the outage is still ongoing) goes back on the ring in order,
// respecting its drop-oldest capacity like any other push.
func (h *Handler) RetrySpool(ctx context.Context) {
	ticker := time.NewTicker(retryRingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.drainAndRepublish(ctx)
		}
	}
}

func (h *Handler) drainAndRepublish(ctx context.Context) {
	pending := h.ring.drain()
	for i, env := range pending {
		if err := h.bus.Publish(ctx, env); err != nil {
			h.log.Warn().Err(err).Msg("spool ring republish still failing, re-spooling remainder")
			for _, remaining := range pending[i:] {
				h.ring.push(remaining)
			}
			return
		}
	}
	if len(pending) > 0 {
		h.log.Info().Int("count", len(pending)).Msg("spool ring flushed to bus")
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ingest implements spec §4.4: parse, shed empty/identity-less bodies with
// a 200, otherwise enqueue as-is and return 200; 5xx only when the body
// cannot be read or the enqueue fails, so the device retries.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "family")
	token := chi.URLParam(r, "token")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read request body")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "read failed", "statusCode": 500})
		return
	}

	sourceIP := clientIP(r)

	if isEmptyOrIdentityless(body) {
		h.shed.record(sourceIP)
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}

	// The bus envelope carries no family field (spec §3's RawEnvelope
	// shape), but the consumer's decoder dispatch needs the family the URL
	// already told us. The edge path is the one place that routing
	// information is known for free, so it rides along as a "{family}/
	// {token}" prefix on Token; cloud-relay envelopes keep a bare token and
	// the consumer resolves family from the relay's token table instead.
	env := types.RawEnvelope{
		ReceivedAt:  time.Now().UTC(),
		Transport:   types.TransportEdgeHTTP,
		Token:       family + "/" + token,
		SourceIP:    sourceIP,
		VendorBody:  body,
		ContentType: contentTypeFor(family, r),
	}

	ctx := r.Context()
	if err := h.bus.Publish(ctx, env); err != nil {
		if dropped := h.ring.push(env); dropped {
			h.log.Warn().Msg("spool ring dropped oldest envelope under sustained bus outage")
		}
		h.log.Error().Err(err).Msg("failed to enqueue envelope, device should retry")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "enqueue failed", "statusCode": 503})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) emptyPayloadStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.shed.snapshot())
}

func (h *Handler) spoolRingStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"dropped": h.ring.droppedCount()})
}

func contentTypeFor(family string, r *http.Request) string {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	_ = family
	return "application/json"
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// isEmptyOrIdentityless implements the cheap pre-decode shed check from
// spec §4.4: an empty body, or JSON with neither gw_id nor any recognized
// identity field, is shed before it ever reaches a decoder.
func isEmptyOrIdentityless(body []byte) bool {
	if len(body) == 0 {
		return true
	}

	var probe map[string]any
	if err := json.Unmarshal(body, &probe); err != nil {
		return false // let the decoder report shape_mismatch instead of silently shedding
	}
	if len(probe) == 0 {
		return true
	}

	identityKeys := []string{"gw_id", "macAddress", "deviceID", "station_no"}
	for _, k := range identityKeys {
		if v, ok := probe[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return false
			}
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

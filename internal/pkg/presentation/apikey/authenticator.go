// Package apikey implements C9: validating the X-API-Key header, resolving
// tenant/tier/scope from the durable key table, authorizing the requested
// family against that scope, and rate limiting per spec §4.9.
package apikey

import (
	"context"
	_ "embed"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/munbon/telemetry-core/internal/pkg/store"
	"github.com/munbon/telemetry-core/pkg/types"
)

//go:embed policy.rego
var policyModule string

type contextKey struct{ name string }

var apiKeyContextKey = &contextKey{"api-key"}

// FromContext returns the ApiKey that authenticated the request, if any.
func FromContext(ctx context.Context) (types.ApiKey, bool) {
	k, ok := ctx.Value(apiKeyContextKey).(types.ApiKey)
	return k, ok
}

func withAPIKey(ctx context.Context, k types.ApiKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, k)
}

// Authenticator implements readapi.Authenticator: the X-API-Key scheme,
// an OPA scope check, and per-key rate limiting.
type Authenticator struct {
	store   store.Store
	cache   *keyCache
	limiter *limiterSet
	query   rego.PreparedEvalQuery
	log     zerolog.Logger
}

// New prepares the embedded rego module once and returns an Authenticator
// ready to be wired into readapi.New.
func New(ctx context.Context, s store.Store, log zerolog.Logger) (*Authenticator, error) {
	query, err := rego.New(
		rego.Query("x = data.munbon.authz.allow"),
		rego.Module("policy.rego", policyModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		store:   s,
		cache:   newKeyCache(60 * time.Second),
		limiter: newLimiterSet(),
		query:   query,
		log:     log,
	}, nil
}

// Middleware implements readapi.Authenticator.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := r.Header.Get("X-API-Key")
		if rawKey == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing X-API-Key header")
			return
		}

		key, err := a.resolve(r.Context(), rawKey)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		if !key.Valid(time.Now()) {
			writeAuthError(w, http.StatusUnauthorized, "API key expired or revoked")
			return
		}

		family := requestedFamily(r)
		allowed, err := a.authorize(r.Context(), key, family)
		if err != nil {
			a.log.Error().Err(err).Msg("opa eval failed")
			writeAuthError(w, http.StatusInternalServerError, "authorization check failed")
			return
		}
		if !allowed {
			writeAuthError(w, http.StatusForbidden, "key scope does not cover this family")
			return
		}

		limiter := a.limiter.forKey(key.ID, key.Tier)
		w.Header().Set("X-RateLimit-Limit", limitHeader(key.Tier))
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", resetHeader(limiter))
			writeAuthError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", remainingHeader(limiter))
		w.Header().Set("X-RateLimit-Reset", resetHeader(limiter))

		go a.touch(key.ID)

		r = r.WithContext(withAPIKey(r.Context(), key))
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) resolve(ctx context.Context, rawKey string) (types.ApiKey, error) {
	hash := hashKey(rawKey)
	if key, ok := a.cache.get(hash); ok {
		return key, nil
	}
	key, err := a.store.GetApiKeyByHash(ctx, hash)
	if err != nil {
		return types.ApiKey{}, err
	}
	a.cache.set(hash, key)
	return key, nil
}

func (a *Authenticator) authorize(ctx context.Context, key types.ApiKey, family string) (bool, error) {
	families := make([]string, len(key.AllowedFamilies))
	for i, f := range key.AllowedFamilies {
		families[i] = string(f)
	}

	results, err := a.query.Eval(ctx, rego.EvalInput(map[string]any{
		"tier":             string(key.Tier),
		"allowed_families": families,
		"family":           family,
	}))
	if err != nil {
		return false, err
	}
	if len(results) == 0 {
		return false, nil
	}

	allowed, _ := results[0].Bindings["x"].(bool)
	return allowed, nil
}

func (a *Authenticator) touch(id string) {
	_ = a.store.TouchApiKey(context.Background(), id, time.Now())
}

// requestedFamily extracts the family a request is scoped to, from either
// the "/api/v1/{family-path}/..." route or a "type" query param.
// Endpoints with no family concept (e.g. /sensors) pass the empty string,
// which the policy treats as always in-scope.
func requestedFamily(r *http.Request) string {
	if f := r.URL.Query().Get("type"); f != "" {
		return familyFromSegment(f)
	}
	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	for _, seg := range segments {
		if f := familyFromSegment(seg); f != "" {
			return f
		}
	}
	return ""
}

func familyFromSegment(seg string) string {
	switch seg {
	case "water-levels":
		return string(types.FamilyWaterLevel)
	case "moisture":
		return string(types.FamilyMoisture)
	case "weather":
		return string(types.FamilyWeather)
	default:
		return ""
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","statusCode":` + strconv.Itoa(status) + `}`))
}

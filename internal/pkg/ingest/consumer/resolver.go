package consumer

import (
	"strings"

	"github.com/munbon/telemetry-core/internal/pkg/codec"
	"github.com/munbon/telemetry-core/pkg/types"
)

// FamilyResolver recovers the sensor family a RawEnvelope belongs to, so
// the consumer can pick the right codec.Decoder. The edge and cloud
// intake paths encode this differently (see edgehttp's handler.go
// comment), so the resolver is pluggable per transport.
type FamilyResolver interface {
	Resolve(env types.RawEnvelope) (types.Family, bool)
}

// EdgeFamilyResolver recovers family from the "{family}/{token}" prefix
// edgehttp.Handler writes into Token.
type EdgeFamilyResolver struct{}

func (EdgeFamilyResolver) Resolve(env types.RawEnvelope) (types.Family, bool) {
	segment, _, ok := strings.Cut(env.Token, "/")
	if !ok {
		return "", false
	}
	return codec.FamilyFromPath(segment)
}

// CloudTokenLookup is the minimal surface the consumer needs from a cloud
// relay token table, kept narrow so this package does not import
// ingest/cloudrelay.
type CloudTokenLookup interface {
	FamilyForToken(token string) (types.Family, bool)
}

// CloudFamilyResolver recovers family by looking the bare token up in the
// relay's token table.
type CloudFamilyResolver struct {
	Lookup CloudTokenLookup
}

func (r CloudFamilyResolver) Resolve(env types.RawEnvelope) (types.Family, bool) {
	return r.Lookup.FamilyForToken(env.Token)
}

// MultiResolver dispatches to the resolver registered for the envelope's
// Transport.
type MultiResolver map[types.Transport]FamilyResolver

func (m MultiResolver) Resolve(env types.RawEnvelope) (types.Family, bool) {
	r, ok := m[env.Transport]
	if !ok {
		return "", false
	}
	return r.Resolve(env)
}

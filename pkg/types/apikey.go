package types

import "time"

// Tier is the service tier associated with an ApiKey, which drives both
// rate-limit sizing (C9) and endpoint-class authorization.
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
	TierInternal   Tier = "internal"
)

// ApiKey is the durable row backing C9's validation and scoping decisions.
// Hash is the SHA-256 hex digest of the plaintext key; the plaintext itself
// is never stored.
type ApiKey struct {
	ID              string     `json:"id"`
	Hash            string     `json:"-"`
	Tenant          string     `json:"tenant"`
	Tier            Tier       `json:"tier"`
	AllowedFamilies []Family   `json:"allowedFamilies"`
	AllowedZones    []string   `json:"allowedZones,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastUsedAt      *time.Time `json:"lastUsedAt,omitempty"`
	UsageCount      uint64     `json:"usageCount"`
}

// Valid reports whether the key passes the liveness check from spec §4.9:
// active and (no expiry, or not yet expired).
func (k ApiKey) Valid(now time.Time) bool {
	if !k.Active {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}

// AllowsFamily reports whether the key's scope covers the given family.
func (k ApiKey) AllowsFamily(f Family) bool {
	for _, af := range k.AllowedFamilies {
		if af == f {
			return true
		}
	}
	return false
}

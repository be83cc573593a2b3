package store

import (
	"context"
	"strings"
	"time"

	"github.com/munbon/telemetry-core/pkg/types"
	"gorm.io/gorm"
)

func (s *gormStore) CreateApiKey(ctx context.Context, k types.ApiKey, hash string) error {
	row := ApiKeyRow{
		ID:              k.ID,
		Hash:            hash,
		Tenant:          k.Tenant,
		Tier:            string(k.Tier),
		AllowedFamilies: joinFamilies(k.AllowedFamilies),
		AllowedZones:    strings.Join(k.AllowedZones, ","),
		ExpiresAt:       k.ExpiresAt,
		Active:          k.Active,
		CreatedAt:       k.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return types.NewError(types.KindTransientIO, "create api key failed", err)
	}
	return nil
}

func (s *gormStore) GetApiKeyByHash(ctx context.Context, hash string) (types.ApiKey, error) {
	var row ApiKeyRow
	err := s.db.WithContext(ctx).First(&row, "hash = ?", hash).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return types.ApiKey{}, types.NewError(types.KindAuth, "unknown api key", err)
		}
		return types.ApiKey{}, types.NewError(types.KindTransientIO, "get api key failed", err)
	}
	return rowToApiKey(row), nil
}

func (s *gormStore) TouchApiKey(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&ApiKeyRow{}).Where("id = ?", id).
		Updates(map[string]any{
			"last_used_at": at,
			"usage_count":  gorm.Expr("usage_count + 1"),
		}).Error
	if err != nil {
		return types.NewError(types.KindTransientIO, "touch api key failed", err)
	}
	return nil
}

func joinFamilies(families []types.Family) string {
	parts := make([]string, len(families))
	for i, f := range families {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

func rowToApiKey(row ApiKeyRow) types.ApiKey {
	k := types.ApiKey{
		ID:         row.ID,
		Hash:       row.Hash,
		Tenant:     row.Tenant,
		Tier:       types.Tier(row.Tier),
		ExpiresAt:  row.ExpiresAt,
		Active:     row.Active,
		CreatedAt:  row.CreatedAt,
		LastUsedAt: row.LastUsedAt,
		UsageCount: row.UsageCount,
	}
	if row.AllowedFamilies != "" {
		for _, f := range strings.Split(row.AllowedFamilies, ",") {
			k.AllowedFamilies = append(k.AllowedFamilies, types.Family(f))
		}
	}
	if row.AllowedZones != "" {
		k.AllowedZones = strings.Split(row.AllowedZones, ",")
	}
	return k
}

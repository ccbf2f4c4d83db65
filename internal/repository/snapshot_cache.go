package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lendfast/origination-engine/internal/domain"
	apperrors "github.com/lendfast/origination-engine/pkg/errors"
)

const snapshotKeyPrefix = "application:snapshot:"

// SnapshotCache is the ephemeral progress cache: one JSON blob per loan
// application with a TTL. It backs the resume-after-reload path; losing it
// only costs convenience, the remote store stays authoritative.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSnapshotCache(rdb *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, ttl: ttl}
}

func snapshotKey(loanID string) string {
	return snapshotKeyPrefix + loanID
}

// Read returns the cached snapshot, or (nil, nil) when none exists.
func (c *SnapshotCache) Read(ctx context.Context, loanID string) (*domain.ApplicationSnapshot, error) {
	payload, err := c.rdb.Get(ctx, snapshotKey(loanID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.WrapCacheError(err)
	}

	var snap domain.ApplicationSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, apperrors.WrapCacheError(err)
	}
	return &snap, nil
}

func (c *SnapshotCache) Write(ctx context.Context, snap *domain.ApplicationSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return apperrors.WrapCacheError(err)
	}

	if err := c.rdb.Set(ctx, snapshotKey(snap.LoanID), payload, c.ttl).Err(); err != nil {
		return apperrors.WrapCacheError(err)
	}
	return nil
}

func (c *SnapshotCache) Clear(ctx context.Context, loanID string) error {
	if err := c.rdb.Del(ctx, snapshotKey(loanID)).Err(); err != nil {
		return apperrors.WrapCacheError(err)
	}
	return nil
}

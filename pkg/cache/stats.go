package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/jordanlanch/leadbridge/pkg/domain"
	"github.com/jordanlanch/leadbridge/pkg/logger"
	"github.com/jordanlanch/leadbridge/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	statsKeyPrefix = "leads:stats:"
	cacheType      = "redis"
)

// HitRecorder receives cache hit and miss events. *metrics.Metrics implements it.
type HitRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// StatsCache stores computed stats payloads in Redis, keyed by a hash of the
// filter. Redis failures are logged and treated as misses.
type StatsCache struct {
	client   *Client
	ttl      time.Duration
	logger   logger.Logger
	recorder HitRecorder
}

var _ domain.StatsCache = (*StatsCache)(nil)

// NewStatsCache creates a stats cache. recorder may be nil.
func NewStatsCache(client *Client, ttl time.Duration, log logger.Logger, recorder HitRecorder) *StatsCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = logger.Default()
	}
	return &StatsCache{client: client, ttl: ttl, logger: log, recorder: recorder}
}

// StatsKey returns the cache key of a filter
func StatsKey(filter models.LeadFilter) string {
	b, _ := json.Marshal(filter)
	sum := sha256.Sum256(b)
	return statsKeyPrefix + hex.EncodeToString(sum[:])
}

func (s *StatsCache) GetStats(ctx context.Context, filter models.LeadFilter) (*models.LeadStats, bool) {
	raw, err := s.client.Get(ctx, StatsKey(filter))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("stats cache read failed", "error", err)
		}
		s.miss()
		return nil, false
	}

	var stats models.LeadStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		s.logger.Warn("stats cache entry is corrupt", "error", err)
		s.miss()
		return nil, false
	}
	if s.recorder != nil {
		s.recorder.RecordCacheHit(cacheType)
	}
	return &stats, true
}

func (s *StatsCache) SetStats(ctx context.Context, filter models.LeadFilter, stats *models.LeadStats) {
	b, err := json.Marshal(stats)
	if err != nil {
		s.logger.Warn("stats cache encode failed", "error", err)
		return
	}
	if err := s.client.Set(ctx, StatsKey(filter), b, s.ttl); err != nil {
		s.logger.Warn("stats cache write failed", "error", err)
	}
}

// InvalidateStats drops every cached stats payload
func (s *StatsCache) InvalidateStats(ctx context.Context) {
	n, err := s.client.DeletePattern(ctx, statsKeyPrefix+"*")
	if err != nil {
		s.logger.Warn("stats cache invalidation failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Debug("stats cache invalidated", "keys", n)
	}
}

func (s *StatsCache) miss() {
	if s.recorder != nil {
		s.recorder.RecordCacheMiss(cacheType)
	}
}

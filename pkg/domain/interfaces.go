package domain

import (
	"context"
	"time"

	"github.com/jordanlanch/leadbridge/pkg/models"
)

// LeadRepository defines data access operations for leads. Implementations
// must enforce leadid uniqueness in the store itself and report collisions
// as ErrDuplicateKey; missing records are reported as ErrRecordNotFound.
type LeadRepository interface {
	FindByLeadID(ctx context.Context, leadID string) (*models.Lead, error)
	Insert(ctx context.Context, lead *models.Lead) error
	FindManyByIDs(ctx context.Context, leadIDs []string) ([]models.Lead, error)
	UpdateStatus(ctx context.Context, leadID string, update StatusUpdate) (*models.Lead, error)
	Delete(ctx context.Context, leadID string) error
	ListFiltered(ctx context.Context, filter models.LeadFilter, sort models.LeadSort, page, limit int) ([]models.Lead, error)
	CountFiltered(ctx context.Context, filter models.LeadFilter) (int64, error)
	AggregateOverview(ctx context.Context, filter models.LeadFilter) (*models.Overview, error)
	AggregateTopBy(ctx context.Context, field string, filter models.LeadFilter, topN int) ([]models.Bucket, error)
	MarkStalePending(ctx context.Context, olderThan time.Time, message string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// StatusUpdate describes one status mutation. Nil fields are left untouched.
type StatusUpdate struct {
	Status         models.Status
	ProcessingTime *int64
	ForwardedTo    *string
	LastError      *string
}

// StatsCache caches computed stats payloads
type StatsCache interface {
	GetStats(ctx context.Context, filter models.LeadFilter) (*models.LeadStats, bool)
	SetStats(ctx context.Context, filter models.LeadFilter, stats *models.LeadStats)
	InvalidateStats(ctx context.Context)
}

// AggregatableFields are the fields AggregateTopBy accepts
var AggregatableFields = map[string]bool{
	"city":     true,
	"category": true,
	"leadtype": true,
	"status":   true,
}

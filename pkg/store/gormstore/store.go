// Package gormstore persists leads in a relational database through gorm.
// PostgreSQL is used in production and SQLite in tests and local runs.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jordanlanch/leadbridge/pkg/domain"
	"github.com/jordanlanch/leadbridge/pkg/models"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

const pqUniqueViolation = "23505"

var _ domain.LeadRepository = (*Store)(nil)

// Store implements domain.LeadRepository on a *gorm.DB
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm connection
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the leads table and its unique leadid index
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.Lead{}); err != nil {
		return fmt.Errorf("failed to migrate leads table: %w", err)
	}
	return nil
}

func (s *Store) FindByLeadID(ctx context.Context, leadID string) (*models.Lead, error) {
	var lead models.Lead
	err := s.db.WithContext(ctx).Where("leadid = ?", leadID).First(&lead).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &lead, nil
}

// Insert stores a new lead. A leadid collision, including one lost to a
// concurrent insert, is reported as domain.ErrDuplicateKey.
func (s *Store) Insert(ctx context.Context, lead *models.Lead) error {
	lead.ID = 0
	lead.Date = lead.Date.UTC()
	if lead.Status == "" {
		lead.Status = models.StatusPending
	}
	if err := s.db.WithContext(ctx).Create(lead).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (s *Store) FindManyByIDs(ctx context.Context, leadIDs []string) ([]models.Lead, error) {
	if len(leadIDs) == 0 {
		return []models.Lead{}, nil
	}
	var leads []models.Lead
	if err := s.db.WithContext(ctx).Where("leadid IN ?", leadIDs).Find(&leads).Error; err != nil {
		return nil, err
	}
	return leads, nil
}

// UpdateStatus applies update and returns the record as stored afterwards
func (s *Store) UpdateStatus(ctx context.Context, leadID string, update domain.StatusUpdate) (*models.Lead, error) {
	values := map[string]any{
		"status":     update.Status,
		"updated_at": time.Now().UTC(),
	}
	if update.ProcessingTime != nil {
		values["processing_time"] = *update.ProcessingTime
	}
	if update.ForwardedTo != nil {
		values["forwarded_to"] = *update.ForwardedTo
	}
	if update.LastError != nil {
		values["last_error"] = *update.LastError
	}

	var lead models.Lead
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Lead{}).Where("leadid = ?", leadID).Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrRecordNotFound
		}
		return tx.Where("leadid = ?", leadID).First(&lead).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &lead, nil
}

func (s *Store) Delete(ctx context.Context, leadID string) error {
	res := s.db.WithContext(ctx).Where("leadid = ?", leadID).Delete(&models.Lead{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (s *Store) ListFiltered(ctx context.Context, filter models.LeadFilter, sort models.LeadSort, page, limit int) ([]models.Lead, error) {
	if page < 1 {
		page = 1
	}
	column, ok := models.SortableFields[sort.Field]
	if !ok {
		column = models.SortableFields[models.DefaultLeadSort.Field]
	}
	direction := "DESC"
	if sort.Order == models.SortAsc {
		direction = "ASC"
	}

	q := applyFilter(s.db.WithContext(ctx).Model(&models.Lead{}), filter).
		Order(fmt.Sprintf("%s %s, id %s", column, direction, direction))
	if limit > 0 {
		q = q.Offset((page - 1) * limit).Limit(limit)
	}

	leads := []models.Lead{}
	if err := q.Find(&leads).Error; err != nil {
		return nil, err
	}
	return leads, nil
}

func (s *Store) CountFiltered(ctx context.Context, filter models.LeadFilter) (int64, error) {
	var total int64
	err := applyFilter(s.db.WithContext(ctx).Model(&models.Lead{}), filter).Count(&total).Error
	return total, err
}

func (s *Store) AggregateOverview(ctx context.Context, filter models.LeadFilter) (*models.Overview, error) {
	var row overviewRow
	err := applyFilter(s.db.WithContext(ctx).Model(&models.Lead{}), filter).
		Select(`COUNT(*) AS total_leads,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending_leads,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS processed_leads,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed_leads,
			COALESCE(AVG(processing_time), 0) AS avg_processing_time`,
			models.StatusPending, models.StatusProcessed, models.StatusFailed).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &models.Overview{
		TotalLeads:        row.TotalLeads,
		PendingLeads:      row.PendingLeads,
		ProcessedLeads:    row.ProcessedLeads,
		FailedLeads:       row.FailedLeads,
		AvgProcessingTime: row.AvgProcessingTime,
	}, nil
}

type overviewRow struct {
	TotalLeads        int64
	PendingLeads      int64
	ProcessedLeads    int64
	FailedLeads       int64
	AvgProcessingTime float64
}

// AggregateTopBy counts leads per value of field, largest groups first
func (s *Store) AggregateTopBy(ctx context.Context, field string, filter models.LeadFilter, topN int) ([]models.Bucket, error) {
	if !domain.AggregatableFields[field] {
		return nil, fmt.Errorf("field %q cannot be aggregated", field)
	}
	q := applyFilter(s.db.WithContext(ctx).Model(&models.Lead{}), filter).
		Select(field + " AS id, COUNT(*) AS count").
		Group(field).
		Order("count DESC, " + field + " ASC")
	if topN > 0 {
		q = q.Limit(topN)
	}

	buckets := []models.Bucket{}
	if err := q.Scan(&buckets).Error; err != nil {
		return nil, err
	}
	return buckets, nil
}

// MarkStalePending fails every lead still pending whose last status change
// happened before olderThan
func (s *Store) MarkStalePending(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Lead{}).
		Where("status = ? AND updated_at < ?", models.StatusPending, olderThan.UTC()).
		Updates(map[string]any{
			"status":     models.StatusFailed,
			"last_error": message,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func applyFilter(q *gorm.DB, f models.LeadFilter) *gorm.DB {
	if f.City != "" {
		q = q.Where(`LOWER(city) LIKE ? ESCAPE '\'`, containsPattern(f.City))
	}
	if f.Category != "" {
		q = q.Where(`LOWER(category) LIKE ? ESCAPE '\'`, containsPattern(f.Category))
	}
	if f.LeadType != "" {
		q = q.Where("leadtype = ?", f.LeadType)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.StartDate != nil {
		q = q.Where("date >= ?", f.StartDate.UTC())
	}
	if f.EndDate != nil {
		q = q.Where("date <= ?", f.EndDate.UTC())
	}
	return q
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns user text into a literal, lowercase LIKE substring pattern
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return true
	}
	return false
}

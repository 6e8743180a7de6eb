package leads

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jordanlanch/leadbridge/pkg/domain"
	"github.com/jordanlanch/leadbridge/pkg/forwarding"
	"github.com/jordanlanch/leadbridge/pkg/logger"
	"github.com/jordanlanch/leadbridge/pkg/metrics"
	"github.com/jordanlanch/leadbridge/pkg/models"
	"github.com/jordanlanch/leadbridge/pkg/validation"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageLimit       = 10
	MaxPageLimit           = 100
	MaxBulkLeads           = 100
	DefaultBulkConcurrency = 10
	MaxExportRows          = 10000
	TopBucketCount         = 10

	// StaleLeadMessage is recorded on leads failed by the stale sweeper
	StaleLeadMessage = "forwarding interrupted"
)

// Forwarder dispatches one lead. *forwarding.Dispatcher implements it.
type Forwarder interface {
	Forward(ctx context.Context, lead *models.Lead) *forwarding.Result
}

// Recorder receives business events. *metrics.Metrics implements it.
type Recorder interface {
	RecordLeadReceived(result string)
	RecordStaleSwept(n int64)
}

// Service handles lead intake, forwarding and queries
type Service struct {
	repo            domain.LeadRepository
	forwarder       Forwarder
	validator       *validation.Validator
	cache           domain.StatsCache
	recorder        Recorder
	logger          logger.Logger
	bulkConcurrency int
	now             func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithStatsCache enables caching of stats payloads
func WithStatsCache(c domain.StatsCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRecorder registers a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBulkConcurrency caps concurrent forwards of one bulk request
func WithBulkConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bulkConcurrency = n
		}
	}
}

// NewService creates a new lead service
func NewService(repo domain.LeadRepository, forwarder Forwarder, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		forwarder:       forwarder,
		validator:       validation.New(),
		logger:          logger.Default(),
		bulkConcurrency: DefaultBulkConcurrency,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validator exposes the rule table used by the service, for request DTOs
func (s *Service) Validator() *validation.Validator {
	return s.validator
}

// Create validates, stores and forwards one inbound lead. Forwarding finishes
// before Create returns, and its outcome is recorded on the lead rather than
// returned as an error.
func (s *Service) Create(ctx context.Context, raw map[string]any) (*models.Lead, error) {
	input, fieldErrs, err := s.validator.Validate(raw)
	if err != nil {
		s.record(metrics.ResultError)
		return nil, domain.NewInternalError(err)
	}
	if len(fieldErrs) > 0 {
		s.record(metrics.ResultInvalid)
		return nil, domain.NewValidationError(fieldErrs)
	}

	lead := validation.Sanitize(input).ToLead()

	if _, err := s.repo.FindByLeadID(ctx, lead.LeadID); err == nil {
		s.record(metrics.ResultDuplicate)
		return nil, domain.NewLeadExistsError(lead.LeadID)
	} else if !errors.Is(err, domain.ErrRecordNotFound) {
		s.record(metrics.ResultError)
		return nil, domain.NewInternalError(err)
	}

	if err := s.repo.Insert(ctx, lead); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			s.record(metrics.ResultDuplicate)
			return nil, domain.NewLeadExistsError(lead.LeadID)
		}
		s.record(metrics.ResultError)
		return nil, domain.NewInternalError(err)
	}
	s.record(metrics.ResultReceived)
	s.logger.Info("lead received", "leadid", lead.LeadID, "category", lead.Category)

	updated, _ := s.forwardAndRecord(context.WithoutCancel(ctx), lead)
	s.invalidateStats(ctx)
	return updated, nil
}

// RetryResult is the synchronous outcome of a retry
type RetryResult struct {
	Lead    *models.Lead
	Forward *forwarding.Result
}

// Retry forwards a failed lead once more
func (s *Service) Retry(ctx context.Context, leadID string) (*RetryResult, error) {
	lead, err := s.find(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead.Status != models.StatusFailed {
		return nil, domain.NewLeadStateError(leadID, lead.Status, "Only failed leads can be retried")
	}

	updated, result := s.forwardAndRecord(context.WithoutCancel(ctx), lead)
	s.invalidateStats(ctx)
	return &RetryResult{Lead: updated, Forward: result}, nil
}

// BulkForward forwards every known lead of leadIDs concurrently. Unknown ids
// are counted and skipped; one lead's failure never affects another.
func (s *Service) BulkForward(ctx context.Context, leadIDs []string) (*models.BulkForwardResult, error) {
	ids := dedupe(leadIDs)
	if len(ids) == 0 {
		return nil, domain.NewBadRequestError("leadIds must contain at least 1 item")
	}
	if len(ids) > MaxBulkLeads {
		return nil, domain.NewBadRequestError(fmt.Sprintf("leadIds must contain at most %d items", MaxBulkLeads))
	}

	found, err := s.repo.FindManyByIDs(ctx, ids)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	byID := make(map[string]*models.Lead, len(found))
	for i := range found {
		byID[found[i].LeadID] = &found[i]
	}
	ordered := make([]*models.Lead, 0, len(found))
	for _, id := range ids {
		if lead, ok := byID[id]; ok {
			ordered = append(ordered, lead)
		}
	}

	details := make([]models.BulkDetail, len(ordered))
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.bulkConcurrency)
	for i, lead := range ordered {
		g.Go(func() error {
			details[i] = s.forwardBulkItem(detached, lead)
			return nil
		})
	}
	_ = g.Wait()

	result := &models.BulkForwardResult{
		Summary: models.BulkSummary{
			Total:    len(ids),
			NotFound: len(ids) - len(ordered),
		},
		Details: details,
	}
	for _, d := range details {
		if d.Success {
			result.Summary.Successful++
		} else {
			result.Summary.Failed++
		}
	}

	s.logger.Info("bulk forward completed",
		"total", result.Summary.Total,
		"successful", result.Summary.Successful,
		"failed", result.Summary.Failed,
		"not_found", result.Summary.NotFound,
	)
	s.invalidateStats(ctx)
	return result, nil
}

func (s *Service) forwardBulkItem(ctx context.Context, lead *models.Lead) (detail models.BulkDetail) {
	detail = models.BulkDetail{LeadID: lead.LeadID, Status: models.StatusFailed}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("bulk forward item panicked", "leadid", lead.LeadID, "panic", r)
			detail.Success = false
			detail.Status = models.StatusFailed
			detail.Error = fmt.Sprintf("unexpected error: %v", r)
		}
	}()

	updated, result := s.forwardAndRecord(ctx, lead)
	detail.Success = result.Success
	detail.Status = updated.Status
	detail.Endpoint = string(result.Endpoint)
	detail.Error = result.Error
	return detail
}

// forwardAndRecord forwards lead and persists exactly one status update for
// the outcome. A panicking forwarder counts as a failed forward.
func (s *Service) forwardAndRecord(ctx context.Context, lead *models.Lead) (*models.Lead, *forwarding.Result) {
	start := s.now()
	result := s.safeForward(ctx, lead)
	elapsed := s.now().Sub(start).Milliseconds()

	status := models.StatusFailed
	if result.Success {
		status = models.StatusProcessed
	}
	endpoint := string(result.Endpoint)
	lastError := result.Error

	updated, err := s.repo.UpdateStatus(ctx, lead.LeadID, domain.StatusUpdate{
		Status:         status,
		ProcessingTime: &elapsed,
		ForwardedTo:    &endpoint,
		LastError:      &lastError,
	})
	if err != nil {
		s.logger.Error("failed to record forwarding outcome", "leadid", lead.LeadID, "status", status, "error", err)
		copied := *lead
		copied.Status = status
		copied.ProcessingTime = elapsed
		copied.ForwardedTo = endpoint
		copied.LastError = lastError
		return &copied, result
	}

	if result.Success {
		s.logger.Info("lead processed", "leadid", lead.LeadID, "endpoint", endpoint, "duration_ms", elapsed)
	} else {
		s.logger.Warn("lead forwarding failed", "leadid", lead.LeadID, "endpoint", endpoint, "error", lastError)
	}
	return updated, result
}

func (s *Service) safeForward(ctx context.Context, lead *models.Lead) (result *forwarding.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("forwarder panicked", "leadid", lead.LeadID, "panic", r)
			result = &forwarding.Result{
				Category: lead.Category,
				Error:    fmt.Sprintf("unexpected error: %v", r),
			}
		}
	}()

	result = s.forwarder.Forward(ctx, lead)
	if result == nil {
		result = &forwarding.Result{Category: lead.Category, Error: "forwarder returned no result"}
	}
	return result
}

// Get returns one lead
func (s *Service) Get(ctx context.Context, leadID string) (*models.Lead, error) {
	return s.find(ctx, leadID)
}

// UpdateStatus sets the status of a lead explicitly
func (s *Service) UpdateStatus(ctx context.Context, leadID, status string) (*models.Lead, error) {
	st := models.Status(status)
	if !st.IsValid() {
		return nil, domain.NewBadRequestError(domain.MsgInvalidStatus)
	}

	updated, err := s.repo.UpdateStatus(ctx, leadID, domain.StatusUpdate{Status: st})
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Lead")
		}
		return nil, domain.NewInternalError(err)
	}
	s.logger.Info("lead status updated", "leadid", leadID, "status", st)
	s.invalidateStats(ctx)
	return updated, nil
}

// Delete removes a lead
func (s *Service) Delete(ctx context.Context, leadID string) error {
	if err := s.repo.Delete(ctx, leadID); err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.NewNotFoundError("Lead")
		}
		return domain.NewInternalError(err)
	}
	s.logger.Info("lead deleted", "leadid", leadID)
	s.invalidateStats(ctx)
	return nil
}

// List returns one page of leads matching the request filters
func (s *Service) List(ctx context.Context, req models.LeadListRequest) (*models.LeadPage, error) {
	filter, sort, err := s.parseListRequest(req)
	if err != nil {
		return nil, err
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	total, err := s.repo.CountFiltered(ctx, filter)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	leads, err := s.repo.ListFiltered(ctx, filter, sort, page, limit)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	return &models.LeadPage{
		Data: leads,
		Pagination: models.PaginationInfo{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}, nil
}

// ListAll returns every lead matching the request filters, up to MaxExportRows
func (s *Service) ListAll(ctx context.Context, req models.LeadListRequest) ([]models.Lead, error) {
	filter, sort, err := s.parseListRequest(req)
	if err != nil {
		return nil, err
	}
	leads, err := s.repo.ListFiltered(ctx, filter, sort, 1, MaxExportRows)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	return leads, nil
}

// Stats returns the overview and the top cities and categories
func (s *Service) Stats(ctx context.Context, req models.LeadStatsRequest) (*models.LeadStats, error) {
	filter, fieldErrs := buildFilter(req.City, req.Category, "", "", req.StartDate, req.EndDate)
	if len(fieldErrs) > 0 {
		return nil, domain.NewValidationError(fieldErrs)
	}

	if s.cache != nil {
		if stats, ok := s.cache.GetStats(ctx, filter); ok {
			return stats, nil
		}
	}

	overview, err := s.repo.AggregateOverview(ctx, filter)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	cities, err := s.repo.AggregateTopBy(ctx, "city", filter, TopBucketCount)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	categories, err := s.repo.AggregateTopBy(ctx, "category", filter, TopBucketCount)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	stats := &models.LeadStats{
		Overview:      *overview,
		CityStats:     cities,
		CategoryStats: categories,
	}
	if s.cache != nil {
		s.cache.SetStats(ctx, filter, stats)
	}
	return stats, nil
}

// SweepStale fails leads still pending after olderThan. Such leads were
// stranded by a crash between insert and the forwarding outcome.
func (s *Service) SweepStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.repo.MarkStalePending(ctx, s.now().Add(-olderThan), StaleLeadMessage)
	if err != nil {
		return 0, err
	}
	if s.recorder != nil {
		s.recorder.RecordStaleSwept(n)
	}
	if n > 0 {
		s.invalidateStats(ctx)
	}
	return n, nil
}

// Ping checks the backing store
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) find(ctx context.Context, leadID string) (*models.Lead, error) {
	lead, err := s.repo.FindByLeadID(ctx, leadID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Lead")
		}
		return nil, domain.NewInternalError(err)
	}
	return lead, nil
}

func (s *Service) parseListRequest(req models.LeadListRequest) (models.LeadFilter, models.LeadSort, error) {
	fieldErrs, err := s.validator.StructErrors(req)
	if err != nil {
		return models.LeadFilter{}, models.LeadSort{}, domain.NewInternalError(err)
	}

	filter, dateErrs := buildFilter(req.City, req.Category, req.LeadType, req.Status, req.StartDate, req.EndDate)
	fieldErrs = append(fieldErrs, dateErrs...)

	sort := models.DefaultLeadSort
	if req.SortBy != "" {
		if _, ok := models.SortableFields[req.SortBy]; !ok {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "sortBy", Message: "sortBy is not a sortable field"})
		}
		sort.Field = req.SortBy
	}
	if req.SortOrder != "" {
		sort.Order = models.SortOrder(req.SortOrder)
	}

	if len(fieldErrs) > 0 {
		return models.LeadFilter{}, models.LeadSort{}, domain.NewValidationError(fieldErrs)
	}
	return filter, sort, nil
}

func buildFilter(city, category, leadType, status, startDate, endDate string) (models.LeadFilter, []models.FieldError) {
	filter := models.LeadFilter{
		City:     city,
		Category: category,
		LeadType: leadType,
		Status:   models.Status(status),
	}

	var fieldErrs []models.FieldError
	if startDate != "" {
		t, err := validation.ParseDate(startDate)
		if err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "startDate", Message: "startDate must be a valid ISO date"})
		} else {
			day := calendarDay(t)
			filter.StartDate = &day
		}
	}
	if endDate != "" {
		t, err := validation.ParseDate(endDate)
		if err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "endDate", Message: "endDate must be a valid ISO date"})
		} else {
			day := calendarDay(t)
			filter.EndDate = &day
		}
	}
	return filter, fieldErrs
}

// calendarDay matches the UTC-midnight form in which lead dates are stored
func calendarDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.RecordLeadReceived(result)
	}
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateStats(context.WithoutCancel(ctx))
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

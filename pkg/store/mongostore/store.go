// Package mongostore persists leads as documents in a MongoDB collection
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jordanlanch/leadbridge/pkg/domain"
	"github.com/jordanlanch/leadbridge/pkg/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const collectionName = "leads"

var _ domain.LeadRepository = (*Store)(nil)

// Store implements domain.LeadRepository on a MongoDB collection
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect opens a client for uri and ensures the unique leadid index exists
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	s := &Store{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
	}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "leadid", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
		{Keys: bson.D{{Key: "date", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create lead indexes: %w", err)
	}
	return nil
}

func (s *Store) FindByLeadID(ctx context.Context, leadID string) (*models.Lead, error) {
	var lead models.Lead
	err := s.collection.FindOne(ctx, bson.M{"leadid": leadID}).Decode(&lead)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &lead, nil
}

func (s *Store) Insert(ctx context.Context, lead *models.Lead) error {
	now := time.Now().UTC()
	lead.Date = lead.Date.UTC()
	lead.CreatedAt = now
	lead.UpdatedAt = now
	if lead.Status == "" {
		lead.Status = models.StatusPending
	}

	if _, err := s.collection.InsertOne(ctx, lead); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (s *Store) FindManyByIDs(ctx context.Context, leadIDs []string) ([]models.Lead, error) {
	leads := []models.Lead{}
	if len(leadIDs) == 0 {
		return leads, nil
	}
	cursor, err := s.collection.Find(ctx, bson.M{"leadid": bson.M{"$in": leadIDs}})
	if err != nil {
		return nil, err
	}
	if err := cursor.All(ctx, &leads); err != nil {
		return nil, err
	}
	return leads, nil
}

func (s *Store) UpdateStatus(ctx context.Context, leadID string, update domain.StatusUpdate) (*models.Lead, error) {
	set := bson.M{
		"status":    update.Status,
		"updatedAt": time.Now().UTC(),
	}
	if update.ProcessingTime != nil {
		set["processingTime"] = *update.ProcessingTime
	}
	if update.ForwardedTo != nil {
		set["forwardedTo"] = *update.ForwardedTo
	}
	if update.LastError != nil {
		set["lastError"] = *update.LastError
	}

	var lead models.Lead
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"leadid": leadID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&lead)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &lead, nil
}

func (s *Store) Delete(ctx context.Context, leadID string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"leadid": leadID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (s *Store) ListFiltered(ctx context.Context, filter models.LeadFilter, sort models.LeadSort, page, limit int) ([]models.Lead, error) {
	if page < 1 {
		page = 1
	}
	field := sort.Field
	if _, ok := models.SortableFields[field]; !ok {
		field = models.DefaultLeadSort.Field
	}
	direction := -1
	if sort.Order == models.SortAsc {
		direction = 1
	}

	opts := options.Find().SetSort(bson.D{{Key: field, Value: direction}, {Key: "_id", Value: direction}})
	if limit > 0 {
		opts.SetSkip(int64((page - 1) * limit)).SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	leads := []models.Lead{}
	if err := cursor.All(ctx, &leads); err != nil {
		return nil, err
	}
	return leads, nil
}

func (s *Store) CountFiltered(ctx context.Context, filter models.LeadFilter) (int64, error) {
	return s.collection.CountDocuments(ctx, buildFilter(filter))
}

func (s *Store) AggregateOverview(ctx context.Context, filter models.LeadFilter) (*models.Overview, error) {
	countStatus := func(status models.Status) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", status}}, 1, 0}}}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: buildFilter(filter)}},
		{{Key: "$group", Value: bson.M{
			"_id":               nil,
			"totalLeads":        bson.M{"$sum": 1},
			"pendingLeads":      countStatus(models.StatusPending),
			"processedLeads":    countStatus(models.StatusProcessed),
			"failedLeads":       countStatus(models.StatusFailed),
			"avgProcessingTime": bson.M{"$avg": "$processingTime"},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":               0,
			"totalLeads":        1,
			"pendingLeads":      1,
			"processedLeads":    1,
			"failedLeads":       1,
			"avgProcessingTime": bson.M{"$ifNull": bson.A{"$avgProcessingTime", 0}},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []models.Overview
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &models.Overview{}, nil
	}
	return &rows[0], nil
}

func (s *Store) AggregateTopBy(ctx context.Context, field string, filter models.LeadFilter, topN int) ([]models.Bucket, error) {
	if !domain.AggregatableFields[field] {
		return nil, fmt.Errorf("field %q cannot be aggregated", field)
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: buildFilter(filter)}},
		{{Key: "$group", Value: bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	if topN > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: topN}})
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	buckets := []models.Bucket{}
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}

// MarkStalePending fails pending leads whose last status change predates olderThan
func (s *Store) MarkStalePending(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	res, err := s.collection.UpdateMany(ctx,
		bson.M{"status": models.StatusPending, "updatedAt": bson.M{"$lt": olderThan.UTC()}},
		bson.M{"$set": bson.M{
			"status":    models.StatusFailed,
			"lastError": message,
			"updatedAt": time.Now().UTC(),
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// buildFilter translates a LeadFilter into a query document
func buildFilter(f models.LeadFilter) bson.M {
	q := bson.M{}
	if city := strings.TrimSpace(f.City); city != "" {
		q["city"] = bson.Regex{Pattern: regexp.QuoteMeta(city), Options: "i"}
	}
	if category := strings.TrimSpace(f.Category); category != "" {
		q["category"] = bson.Regex{Pattern: regexp.QuoteMeta(category), Options: "i"}
	}
	if f.LeadType != "" {
		q["leadtype"] = f.LeadType
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.StartDate != nil || f.EndDate != nil {
		dateRange := bson.M{}
		if f.StartDate != nil {
			dateRange["$gte"] = f.StartDate.UTC()
		}
		if f.EndDate != nil {
			dateRange["$lte"] = f.EndDate.UTC()
		}
		q["date"] = dateRange
	}
	return q
}

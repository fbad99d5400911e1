package mongoDb

import (
	"context"
	"errors"
	"fmt"

	ddd "github.com/paulvitic/ddd-projector"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	initializedKey = "initialized"
	expiresAtKey   = "expiresAt"
)

// ProjectionStore keeps one projection type in its own collection. Soft
// deleted records with an expiry are removed by a TTL index.
type ProjectionStore[P ddd.Projection] struct {
	collection    *mongo.Collection
	newProjection func() P
}

func NewProjectionStore[P ddd.Projection](ctx context.Context, db *mongo.Database, collection string, newProjection func() P) (*ProjectionStore[P], error) {
	s := &ProjectionStore[P]{
		collection:    db.Collection(collection),
		newProjection: newProjection,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ProjectionStore[P]) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: initializedKey, Value: 1}}},
		{
			Keys:    bson.D{{Key: expiresAtKey, Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", s.collection.Name(), err)
	}
	return nil
}

// BulkUpsert replaces every projection in one unordered bulk call, so one
// failing write does not stop the rest. Failed writes are joined by id.
func (s *ProjectionStore[P]) BulkUpsert(ctx context.Context, projections []P) error {
	if len(projections) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, len(projections))
	for i, p := range projections {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: p.Base().ID()}}).
			SetReplacement(p).
			SetUpsert(true)
	}

	_, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) > 0 {
		errs := make([]error, 0, len(bulkErr.WriteErrors))
		for _, we := range bulkErr.WriteErrors {
			errs = append(errs, fmt.Errorf("projection %s: %w", projections[we.Index].Base().ID(), we))
		}
		return errors.Join(errs...)
	}
	if err != nil {
		return fmt.Errorf("bulk upsert %d projections: %w", len(projections), err)
	}
	return nil
}

// Reset drops the collection and recreates its indexes.
func (s *ProjectionStore[P]) Reset(ctx context.Context) error {
	if err := s.collection.Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", s.collection.Name(), err)
	}
	return s.ensureIndexes(ctx)
}

func (s *ProjectionStore[P]) Uninitialized(ctx context.Context, limit int) ([]P, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.collection.Find(ctx, bson.D{{Key: initializedKey, Value: false}}, opts)
	if err != nil {
		return nil, fmt.Errorf("query uninitialized: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var found []P
	for cur.Next(ctx) {
		p := s.newProjection()
		if err := cur.Decode(p); err != nil {
			return nil, fmt.Errorf("decode projection: %w", err)
		}
		found = append(found, p)
	}
	return found, cur.Err()
}

func (s *ProjectionStore[P]) ByID(ctx context.Context, id string) (P, error) {
	p := s.newProjection()
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		var zero P
		return zero, fmt.Errorf("projection %s: %w", id, ddd.ErrNotFound)
	}
	if err != nil {
		var zero P
		return zero, fmt.Errorf("projection %s: %w", id, err)
	}
	return p, nil
}

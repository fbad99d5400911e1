package mongoDb

import (
	"context"
	"fmt"

	ddd "github.com/paulvitic/ddd-projector"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const deletedKey = "deleted"

// StateStore reads the current state documents of this service's aggregates.
type StateStore struct {
	collection *mongo.Collection
}

func NewStateStore(db *mongo.Database, collection string) *StateStore {
	return &StateStore{collection: db.Collection(collection)}
}

// Save replaces or inserts base documents.
func (s *StateStore) Save(ctx context.Context, docs ...*ddd.Document) error {
	return ddd.BulkWrite(ctx, docs, func(ctx context.Context, d *ddd.Document) error {
		record := append(bson.D{{Key: "_id", Value: d.Id}, {Key: deletedKey, Value: d.Deleted}}, toDocument(d.Values)...)
		_, err := s.collection.ReplaceOne(ctx, bson.D{{Key: "_id", Value: d.Id}}, record, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("document %s: %w", d.Id, err)
		}
		return nil
	})
}

func (s *StateStore) Records(ctx context.Context, ids []string) ([]ddd.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.collection.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var records []ddd.Record
	for cur.Next(ctx) {
		var raw bson.D
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, toRecord(raw))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (s *StateStore) ActiveIDs(ctx context.Context, page, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 1}}).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(page * pageSize)).
		SetLimit(int64(pageSize))
	cur, err := s.collection.Find(ctx, bson.D{{Key: deletedKey, Value: bson.D{{Key: "$ne", Value: true}}}}, opts)
	if err != nil {
		return nil, fmt.Errorf("query active ids: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var ids []string
	for cur.Next(ctx) {
		var entry struct {
			Id any `bson:"_id"`
		}
		if err := cur.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode id: %w", err)
		}
		ids = append(ids, idString(entry.Id))
	}
	return ids, cur.Err()
}

func toRecord(raw bson.D) *ddd.Document {
	doc := ddd.NewDocument("", nil)
	for _, e := range raw {
		switch e.Key {
		case "_id":
			doc.Id = idString(e.Value)
		case deletedKey:
			doc.Deleted, _ = e.Value.(bool)
		default:
			doc.Values.Set(e.Key, fromBsonValue(e.Value))
		}
	}
	return doc
}

func idString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	default:
		return fmt.Sprint(v)
	}
}

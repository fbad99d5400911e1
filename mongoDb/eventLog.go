package mongoDb

import (
	"context"
	"fmt"
	"time"

	ddd "github.com/paulvitic/ddd-projector"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	aggregateRootIdKey = "aggregateRootId"
	timestampKey       = "timestamp"
)

// EventLog stores events of this service, one document per event.
type EventLog struct {
	collection *mongo.Collection
	log        *ddd.Logger
}

type commandEntry struct {
	Name  string `bson:"name"`
	IsNew bool   `bson:"isNew"`
}

type logEntry struct {
	Id              string       `bson:"_id"`
	AggregateRootId string       `bson:"aggregateRootId"`
	Command         commandEntry `bson:"command"`
	Payload         bson.D       `bson:"payload"`
	Timestamp       time.Time    `bson:"timestamp"`
	PartitionKey    string       `bson:"partitionKey,omitempty"`
	UserId          string       `bson:"userId,omitempty"`
}

// NewEventLog uses the given collection and makes sure it is indexed for
// lookups by aggregate.
func NewEventLog(ctx context.Context, db *mongo.Database, collection string) (*EventLog, error) {
	l := &EventLog{
		collection: db.Collection(collection),
		log:        ddd.NewLogger().Named("mongo event log"),
	}
	_, err := l.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: aggregateRootIdKey, Value: 1}, {Key: timestampKey, Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", collection, err)
	}
	return l, nil
}

// Append inserts events. Already stored event ids are reported as errors.
func (l *EventLog) Append(ctx context.Context, events ...ddd.Event) error {
	if len(events) == 0 {
		return nil
	}
	_, err := l.collection.InsertMany(ctx, toLogEntries(events), options.InsertMany().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("append %d events: %w", len(events), err)
	}
	l.log.Debug("appended %d events", len(events))
	return nil
}

// EventsOf returns events of the given aggregates ordered by timestamp.
func (l *EventLog) EventsOf(ctx context.Context, aggregateRootIDs []string, asOf *time.Time) ([]ddd.Event, error) {
	if len(aggregateRootIDs) == 0 {
		return nil, nil
	}

	filter := bson.D{{Key: aggregateRootIdKey, Value: bson.D{{Key: "$in", Value: aggregateRootIDs}}}}
	if asOf != nil {
		filter = append(filter, bson.E{Key: timestampKey, Value: bson.D{{Key: "$lte", Value: *asOf}}})
	}
	sort := options.Find().SetSort(bson.D{{Key: timestampKey, Value: 1}, {Key: "_id", Value: 1}})

	cur, err := l.collection.Find(ctx, filter, sort)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var entries []logEntry
	if err = cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	events := make([]ddd.Event, len(entries))
	for i, entry := range entries {
		events[i] = entry.event()
	}
	ddd.SortEvents(events)
	return events, nil
}

// Close disconnects the underlying client.
func (l *EventLog) Close() error {
	return l.collection.Database().Client().Disconnect(context.Background())
}

func (e logEntry) event() ddd.Event {
	return ddd.NewEvent(
		e.Id,
		e.AggregateRootId,
		ddd.NewCommand(e.Command.Name, e.Command.IsNew),
		fromDocument(e.Payload),
		e.Timestamp,
	).WithRouting(e.PartitionKey, e.UserId)
}

func toLogEntry(event ddd.Event) logEntry {
	return logEntry{
		Id:              event.ID(),
		AggregateRootId: event.AggregateRootID(),
		Command:         commandEntry{Name: event.Command().Name(), IsNew: event.Command().IsNew()},
		Payload:         toDocument(event.Payload()),
		Timestamp:       event.TimeStamp(),
		PartitionKey:    event.PartitionKey(),
		UserId:          event.UserID(),
	}
}

func toLogEntries(events []ddd.Event) []interface{} {
	entries := make([]interface{}, len(events))
	for i, v := range events {
		entries[i] = toLogEntry(v)
	}
	return entries
}

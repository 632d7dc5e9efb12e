package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nwdaf-lab/hermes/internal/models"
)

const timeStampGenPath = "eventNotifications.timeStampGen"

// MongoEventStore persists anomaly events into one MongoDB collection.
type MongoEventStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoEventStore connects to uri and binds the store to database.collection.
func NewMongoEventStore(ctx context.Context, uri, database, collection string, timeout time.Duration) (*MongoEventStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts := options.Client().ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	return &MongoEventStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		timeout:    timeout,
	}, nil
}

// EnsureIndexes creates the ascending index the rolling-window query uses.
func (s *MongoEventStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: timeStampGenPath, Value: 1}},
		Options: options.Index().SetName("timeStampGen_asc"),
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// InsertEvent stores event as a new document.
func (s *MongoEventStore) InsertEvent(ctx context.Context, event *models.AnomalyEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("insert event %s: %w", event.ID, err)
	}
	return nil
}

// RecentEvents returns every event generated at or after since.
func (s *MongoEventStore) RecentEvents(ctx context.Context, since time.Time) ([]models.AnomalyEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.collection.Find(ctx, recentFilter(since))
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	var events []models.AnomalyEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode recent events: %w", err)
	}
	return events, nil
}

// Ping checks connectivity to the primary.
func (s *MongoEventStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoEventStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func recentFilter(since time.Time) bson.M {
	return bson.M{timeStampGenPath: bson.M{"$gte": since.UTC()}}
}

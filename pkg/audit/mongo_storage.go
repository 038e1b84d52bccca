package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStorage persists audit entries in a capped-growth collection. UUIDs
// are stored as strings so the documents stay greppable in the shell.
type MongoStorage struct {
	collection *mongo.Collection
}

func NewMongoStorage(db *mongo.Database, collection string) *MongoStorage {
	if db == nil {
		panic("audit: mongo database is required")
	}
	if collection == "" {
		collection = "reconciliation_log"
	}
	return &MongoStorage{collection: db.Collection(collection)}
}

type mongoEntry struct {
	ID             string         `bson:"_id"`
	Operation      string         `bson:"operation"`
	UserID         string         `bson:"user_id"`
	SessionID      string         `bson:"session_id,omitempty"`
	CustomerID     string         `bson:"customer_id,omitempty"`
	SubscriptionID string         `bson:"subscription_id,omitempty"`
	Email          string         `bson:"email,omitempty"`
	Status         string         `bson:"status"`
	Error          string         `bson:"error,omitempty"`
	Metadata       map[string]any `bson:"metadata,omitempty"`
	CreatedAt      time.Time      `bson:"created_at"`
}

func (s *MongoStorage) Store(ctx context.Context, entry Entry) error {
	doc := mongoEntry{
		ID:             entry.ID.String(),
		Operation:      entry.Operation,
		UserID:         entry.UserID.String(),
		SessionID:      entry.SessionID,
		CustomerID:     entry.CustomerID,
		SubscriptionID: entry.SubscriptionID,
		Email:          entry.Email,
		Status:         string(entry.Status),
		Error:          entry.Error,
		Metadata:       entry.Metadata,
		CreatedAt:      entry.CreatedAt,
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return errors.Join(ErrStorageFailure, err)
	}
	return nil
}

func (s *MongoStorage) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}

	var docs []mongoEntry
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}

	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, errors.Join(ErrStorageFailure, err)
		}
		uid, err := uuid.Parse(doc.UserID)
		if err != nil {
			return nil, errors.Join(ErrStorageFailure, err)
		}
		entries = append(entries, Entry{
			ID:             id,
			Operation:      doc.Operation,
			UserID:         uid,
			SessionID:      doc.SessionID,
			CustomerID:     doc.CustomerID,
			SubscriptionID: doc.SubscriptionID,
			Email:          doc.Email,
			Status:         Status(doc.Status),
			Error:          doc.Error,
			Metadata:       doc.Metadata,
			CreatedAt:      doc.CreatedAt,
		})
	}
	return entries, nil
}

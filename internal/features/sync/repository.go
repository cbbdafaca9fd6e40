package sync

import (
	"context"
	"time"

	"go-kobo-connect/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SyncLogRepository stores the immutable audit entries. Entries are only
// ever created and read; retention is an operational concern.
type SyncLogRepository interface {
	Create(ctx context.Context, entry *SyncLog) error
	ListByForm(ctx context.Context, formID primitive.ObjectID, limit int64) ([]SyncLog, error)
}

type SyncLogRepositoryImpl struct {
	collection *mongo.Collection
}

func NewSyncLogRepository(db *database.MongodbDB) SyncLogRepository {
	return &SyncLogRepositoryImpl{
		collection: db.DB.Collection("kobo_sync_logs"),
	}
}

func (r *SyncLogRepositoryImpl) Create(ctx context.Context, entry *SyncLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, entry)
	return err
}

func (r *SyncLogRepositoryImpl) ListByForm(ctx context.Context, formID primitive.ObjectID, limit int64) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{"form_id": formID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []SyncLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

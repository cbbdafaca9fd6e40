package form

import (
	"context"
	"errors"
	"time"

	"go-kobo-connect/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateUID is returned when a form config reuses an existing kobo uid
var ErrDuplicateUID = errors.New("form: kobo_uid already configured")

type FormRepository interface {
	Create(ctx context.Context, f *KoboForm) error
	Get(ctx context.Context, id string) (*KoboForm, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*KoboForm, error)
	GetByUID(ctx context.Context, koboUID string) (*KoboForm, error)
	List(ctx context.Context) ([]KoboForm, error)
	ListAutoSync(ctx context.Context) ([]KoboForm, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	EnsureIndexes(ctx context.Context) error
}

type MappingRepository interface {
	Create(ctx context.Context, m *FieldMapping) error
	// ListByForm returns mappings in stable creation order, so applying them
	// is deterministic when two mappings target the same field (last wins).
	ListByForm(ctx context.Context, formID primitive.ObjectID) ([]FieldMapping, error)
	Delete(ctx context.Context, id string) error
	DeleteByForm(ctx context.Context, formID primitive.ObjectID) error
}

type FormRepositoryImpl struct {
	collection *mongo.Collection
}

func NewFormRepository(db *database.MongodbDB) FormRepository {
	return &FormRepositoryImpl{
		collection: db.DB.Collection("kobo_forms"),
	}
}

func (r *FormRepositoryImpl) Create(ctx context.Context, f *KoboForm) error {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	f.CreatedAt = time.Now()
	f.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, f)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateUID
	}
	return err
}

func (r *FormRepositoryImpl) Get(ctx context.Context, id string) (*KoboForm, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, oid)
}

func (r *FormRepositoryImpl) GetByID(ctx context.Context, id primitive.ObjectID) (*KoboForm, error) {
	var f KoboForm
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&f)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FormRepositoryImpl) GetByUID(ctx context.Context, koboUID string) (*KoboForm, error) {
	var f KoboForm
	err := r.collection.FindOne(ctx, bson.M{"kobo_uid": koboUID}).Decode(&f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FormRepositoryImpl) List(ctx context.Context) ([]KoboForm, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var forms []KoboForm
	if err = cursor.All(ctx, &forms); err != nil {
		return nil, err
	}
	return forms, nil
}

func (r *FormRepositoryImpl) ListAutoSync(ctx context.Context) ([]KoboForm, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"auto_sync": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var forms []KoboForm
	if err = cursor.All(ctx, &forms); err != nil {
		return nil, err
	}
	return forms, nil
}

func (r *FormRepositoryImpl) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": updates},
	)
	return err
}

func (r *FormRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

func (r *FormRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "kobo_uid", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type MappingRepositoryImpl struct {
	collection *mongo.Collection
}

func NewMappingRepository(db *database.MongodbDB) MappingRepository {
	return &MappingRepositoryImpl{
		collection: db.DB.Collection("kobo_field_mappings"),
	}
}

func (r *MappingRepositoryImpl) Create(ctx context.Context, m *FieldMapping) error {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	m.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, m)
	return err
}

func (r *MappingRepositoryImpl) ListByForm(ctx context.Context, formID primitive.ObjectID) ([]FieldMapping, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"form_id": formID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var mappings []FieldMapping
	if err = cursor.All(ctx, &mappings); err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *MappingRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

func (r *MappingRepositoryImpl) DeleteByForm(ctx context.Context, formID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"form_id": formID})
	return err
}

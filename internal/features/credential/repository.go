package credential

import (
	"context"
	"time"

	"go-kobo-connect/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CredentialRepository interface {
	Create(ctx context.Context, cred *Credential) error
	Get(ctx context.Context, id string) (*Credential, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*Credential, error)
	List(ctx context.Context) ([]Credential, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

type CredentialRepositoryImpl struct {
	collection *mongo.Collection
}

func NewCredentialRepository(db *database.MongodbDB) CredentialRepository {
	return &CredentialRepositoryImpl{
		collection: db.DB.Collection("kobo_credentials"),
	}
}

func (r *CredentialRepositoryImpl) Create(ctx context.Context, cred *Credential) error {
	if cred.ID.IsZero() {
		cred.ID = primitive.NewObjectID()
	}
	if cred.APIVersion == 0 {
		cred.APIVersion = 2
	}
	cred.CreatedAt = time.Now()
	cred.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, cred)
	return err
}

func (r *CredentialRepositoryImpl) Get(ctx context.Context, id string) (*Credential, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, oid)
}

func (r *CredentialRepositoryImpl) GetByID(ctx context.Context, id primitive.ObjectID) (*Credential, error) {
	var cred Credential
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&cred)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepositoryImpl) List(ctx context.Context) ([]Credential, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var creds []Credential
	if err = cursor.All(ctx, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func (r *CredentialRepositoryImpl) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	updates["updated_at"] = time.Now()
	_, err = r.collection.UpdateOne(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": updates},
	)
	return err
}

func (r *CredentialRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}

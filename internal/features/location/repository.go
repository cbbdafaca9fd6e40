package location

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

type LocationRepository interface {
	Create(ctx context.Context, loc *Location) error
	Get(ctx context.Context, id string) (*Location, error)
	List(ctx context.Context, locType string) ([]Location, error)
	// FindByCode matches the exact code; returns nil (no error) when absent.
	FindByCode(ctx context.Context, code string) (*Location, error)
	// FindByName matches case-insensitively; returns nil (no error) when absent.
	FindByName(ctx context.Context, name string) (*Location, error)
}

type LocationRepositoryImpl struct {
	collection *mongo.Collection
}

func NewLocationRepository(db *database.MongodbDB) LocationRepository {
	return &LocationRepositoryImpl{
		collection: db.DB.Collection("locations"),
	}
}

func (r *LocationRepositoryImpl) Create(ctx context.Context, loc *Location) error {
	if loc.ID.IsZero() {
		loc.ID = primitive.NewObjectID()
	}
	loc.CreatedAt = time.Now()
	loc.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, loc)
	return err
}

func (r *LocationRepositoryImpl) Get(ctx context.Context, id string) (*Location, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var loc Location
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&loc)
	if err != nil {
		return nil, err
	}

	return &loc, nil
}

func (r *LocationRepositoryImpl) List(ctx context.Context, locType string) ([]Location, error) {
	filter := bson.M{}
	if locType != "" {
		filter["type"] = locType
	}

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var locations []Location
	if err = cursor.All(ctx, &locations); err != nil {
		return nil, err
	}

	return locations, nil
}

func (r *LocationRepositoryImpl) FindByCode(ctx context.Context, code string) (*Location, error) {
	var loc Location
	err := r.collection.FindOne(ctx, bson.M{"code": code}).Decode(&loc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &loc, nil
}

func (r *LocationRepositoryImpl) FindByName(ctx context.Context, name string) (*Location, error) {
	filter := bson.M{"name": bson.M{"$regex": primitive.Regex{Pattern: "^" + regexEscape(name) + "$", Options: "i"}}}

	var loc Location
	err := r.collection.FindOne(ctx, filter).Decode(&loc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &loc, nil
}

func regexEscape(s string) string {
	special := `\.+*?()|[]{}^$`
	out := make([]rune, 0, len(s))
	for _, r := range s {
		for _, sp := range special {
			if r == sp {
				out = append(out, '\\')
				break
			}
		}
		out = append(out, r)
	}
	return string(out)
}

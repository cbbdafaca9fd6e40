package ticket

import (
	"context"
	"errors"
	"reflect"
	"time"

	"go-kobo-connect/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNoChanges signals a vacuous save: the persisted document already holds
// exactly the state being written. Callers treat this as "skip", not failure.
var ErrNoChanges = errors.New("ticket: no changes to save")

// ErrNotFound is returned when a ticket id does not exist
var ErrNotFound = errors.New("ticket not found")

// TicketRepository defines the interface for ticket data operations
type TicketRepository interface {
	Create(ctx context.Context, ticket *Ticket) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Ticket, error)
	FindAll(ctx context.Context, filter bson.M, page, limit int64) ([]Ticket, int64, error)
	// FindByCode matches the business code exactly; nil (no error) when absent.
	FindByCode(ctx context.Context, code string) (*Ticket, error)
	// FindByKoboRef matches the remote submission identifiers; nil when absent.
	FindByKoboRef(ctx context.Context, uuid, instanceID string) (*Ticket, error)
	// Save replaces the stored document. Returns ErrNoChanges when the stored
	// state is identical to the one being written.
	Save(ctx context.Context, ticket *Ticket) error
	Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error
}

// TicketRepositoryImpl implements TicketRepository
type TicketRepositoryImpl struct {
	collection *mongo.Collection
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(db *database.MongodbDB) TicketRepository {
	return &TicketRepositoryImpl{
		collection: db.DB.Collection("tickets"),
	}
}

// Create inserts a new ticket
func (r *TicketRepositoryImpl) Create(ctx context.Context, ticket *Ticket) error {
	if ticket.ID.IsZero() {
		ticket.ID = primitive.NewObjectID()
	}
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = time.Now()
	if ticket.Status == "" {
		ticket.Status = TicketStatusOpen
	}

	_, err := r.collection.InsertOne(ctx, ticket)
	return err
}

// FindByID retrieves a ticket by ID
func (r *TicketRepositoryImpl) FindByID(ctx context.Context, id primitive.ObjectID) (*Ticket, error) {
	var ticket Ticket
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ticket)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// FindAll retrieves tickets with filtering and pagination
func (r *TicketRepositoryImpl) FindAll(ctx context.Context, filter bson.M, page, limit int64) ([]Ticket, int64, error) {
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	findOptions := options.Find().
		SetSkip((page - 1) * limit).
		SetLimit(limit).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var tickets []Ticket
	if err = cursor.All(ctx, &tickets); err != nil {
		return nil, 0, err
	}

	return tickets, total, nil
}

func (r *TicketRepositoryImpl) FindByCode(ctx context.Context, code string) (*Ticket, error) {
	var ticket Ticket
	err := r.collection.FindOne(ctx, bson.M{"code": code}).Decode(&ticket)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *TicketRepositoryImpl) FindByKoboRef(ctx context.Context, uuid, instanceID string) (*Ticket, error) {
	var clauses []bson.M
	if uuid != "" {
		clauses = append(clauses, bson.M{"kobo_uuid": uuid})
	}
	if instanceID != "" {
		clauses = append(clauses, bson.M{"kobo_instance_id": instanceID})
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	var ticket Ticket
	err := r.collection.FindOne(ctx, bson.M{"$or": clauses}).Decode(&ticket)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Save replaces the stored ticket, rejecting writes that change nothing.
// Both sides are normalized through a bson round trip so list and timestamp
// representations compare equal.
func (r *TicketRepositoryImpl) Save(ctx context.Context, ticket *Ticket) error {
	var stored bson.M
	err := r.collection.FindOne(ctx, bson.M{"_id": ticket.ID}).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	incoming, err := toBsonMap(ticket)
	if err != nil {
		return err
	}

	delete(stored, "updated_at")
	delete(incoming, "updated_at")
	if reflect.DeepEqual(stored, incoming) {
		return ErrNoChanges
	}

	ticket.UpdatedAt = time.Now()
	_, err = r.collection.ReplaceOne(ctx, bson.M{"_id": ticket.ID}, ticket)
	return err
}

// Update applies a partial update
func (r *TicketRepositoryImpl) Update(ctx context.Context, id primitive.ObjectID, updates bson.M) error {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": updates},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func toBsonMap(ticket *Ticket) (bson.M, error) {
	raw, err := bson.Marshal(ticket)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

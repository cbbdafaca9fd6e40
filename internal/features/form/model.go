package form

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// KoboForm is the configuration for one remote survey form to synchronize
type KoboForm struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description,omitempty" bson:"description,omitempty"`

	// KoboUID is the remote asset uid; globally unique across form configs
	KoboUID string `json:"kobo_uid" bson:"kobo_uid"`
	// KoboID caches the remote internal id after a successful run
	KoboID string `json:"kobo_id,omitempty" bson:"kobo_id,omitempty"`

	CredentialID primitive.ObjectID `json:"credential_id" bson:"credential_id"`
	UserID       string             `json:"user_id" bson:"user_id"`

	AutoSync     bool `json:"auto_sync" bson:"auto_sync"`
	SyncInterval *int `json:"sync_interval,omitempty" bson:"sync_interval,omitempty"` // minutes

	// LastSyncAt is the incremental watermark; nil until the first successful run
	LastSyncAt *time.Time `json:"last_sync_at,omitempty" bson:"last_sync_at,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// FieldMapping ties one remote submission field to a ticket field or to a
// dotted path in the ticket attribute bag (targets prefixed "attributes.").
type FieldMapping struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	FormID      primitive.ObjectID `json:"form_id" bson:"form_id"`
	KoboField   string             `json:"kobo_field" bson:"kobo_field"`
	TicketField string             `json:"ticket_field" bson:"ticket_field"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
}

package credential

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Credential holds the connection details for one Kobo server account.
// It is referenced (never owned) by form configs.
type Credential struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name       string             `json:"name" bson:"name"`
	BaseURL    string             `json:"base_url" bson:"base_url"`
	APIVersion int                `json:"api_version" bson:"api_version"`
	Token      string             `json:"token" bson:"token"`
	UserID     string             `json:"user_id" bson:"user_id"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" bson:"updated_at"`
}

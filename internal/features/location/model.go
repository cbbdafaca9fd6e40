package location

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LocationType mirrors the administrative hierarchy used on submissions
type LocationType string

const (
	LocationTypeRegion         LocationType = "region"
	LocationTypePrefecture     LocationType = "prefecture"
	LocationTypeSousPrefecture LocationType = "sous_prefecture"
	LocationTypeDistrict       LocationType = "district"
)

// Location is a geographic reference resolvable from submission fields
type Location struct {
	ID        primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Code      string              `json:"code" bson:"code"`
	Name      string              `json:"name" bson:"name"`
	Type      LocationType        `json:"type" bson:"type"`
	ParentID  *primitive.ObjectID `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
	CreatedAt time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time           `json:"updated_at" bson:"updated_at"`
}

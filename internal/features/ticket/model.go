package ticket

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TicketStatus represents the status of a ticket
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority represents the priority classification of a ticket
type TicketPriority string

const (
	TicketPriorityNormal   TicketPriority = "Normal"
	TicketPriorityCritical TicketPriority = "Critical"
)

// EscalationHistoryEntry records one escalation event on a ticket
type EscalationHistoryEntry struct {
	Level       int                `json:"level" bson:"level"`
	EscalatedAt time.Time          `json:"escalated_at" bson:"escalated_at"`
	Reason      string             `json:"reason" bson:"reason"`
	RuleID      primitive.ObjectID `json:"rule_id,omitempty" bson:"rule_id,omitempty"`
}

// Ticket is a case record. Tickets are created and updated by the Kobo
// synchronizer but owned by the case-management side: the synchronizer never
// deletes one and never touches fields outside its mapping.
type Ticket struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Code        string             `json:"code" bson:"code"` // business key
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`

	Status     TicketStatus   `json:"status" bson:"status"`
	Priority   TicketPriority `json:"priority,omitempty" bson:"priority,omitempty"`
	Category   string         `json:"category,omitempty" bson:"category,omitempty"`
	Channel    string         `json:"channel,omitempty" bson:"channel,omitempty"` // source tag, e.g. "kobo"
	Resolution string         `json:"resolution,omitempty" bson:"resolution,omitempty"`

	DateOfIncident   *time.Time `json:"date_of_incident,omitempty" bson:"date_of_incident,omitempty"`
	DateOfSubmission *time.Time `json:"date_of_submission,omitempty" bson:"date_of_submission,omitempty"`

	ReporterName string `json:"reporter_name,omitempty" bson:"reporter_name,omitempty"`

	// Remote identifiers used for duplicate detection across sync runs
	KoboUUID       string `json:"kobo_uuid,omitempty" bson:"kobo_uuid,omitempty"`
	KoboInstanceID string `json:"kobo_instance_id,omitempty" bson:"kobo_instance_id,omitempty"`

	LocationID *primitive.ObjectID `json:"location_id,omitempty" bson:"location_id,omitempty"`

	// Attributes is the free-form bag for mapped fields with no dedicated column
	Attributes map[string]interface{} `json:"attributes,omitempty" bson:"attributes,omitempty"`

	EscalationLevel   int                      `json:"escalation_level" bson:"escalation_level"`
	EscalationHistory []EscalationHistoryEntry `json:"escalation_history,omitempty" bson:"escalation_history,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// EscalationRule is an automatic escalation rule evaluated when a ticket enters the system
type EscalationRule struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name          string             `json:"name" bson:"name"`
	Priority      *TicketPriority    `json:"priority,omitempty" bson:"priority,omitempty"` // nil = any priority
	EscalateLevel int                `json:"escalate_level" bson:"escalate_level"`
	Reason        string             `json:"reason" bson:"reason"`
	IsActive      bool               `json:"is_active" bson:"is_active"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

package sync

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SyncStatus is the outcome class of one audit entry
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncAction tags what a log entry records
type SyncAction string

const (
	SyncActionStart    SyncAction = "start"
	SyncActionEnd      SyncAction = "end"
	SyncActionCreated  SyncAction = "created"
	SyncActionUpdated  SyncAction = "updated"
	SyncActionRowError SyncAction = "row_error"
	SyncActionError    SyncAction = "error"
)

// SyncLog is one immutable audit entry of a sync run
type SyncLog struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	FormID    primitive.ObjectID `json:"form_id" bson:"form_id"`
	Status    SyncStatus         `json:"status" bson:"status"`
	Action    SyncAction         `json:"action" bson:"action"`
	Message   string             `json:"message,omitempty" bson:"message,omitempty"`
	Details   bson.M             `json:"details,omitempty" bson:"details,omitempty"`
	UserID    string             `json:"user_id,omitempty" bson:"user_id,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// RunReport summarizes the outcomes of one sync run
type RunReport struct {
	Created   int        `json:"created"`
	Updated   int        `json:"updated"`
	Skipped   int        `json:"skipped"`
	Failed    int        `json:"failed"`
	Watermark *time.Time `json:"watermark,omitempty"`
	DryRun    bool       `json:"dry_run"`
}

// SyncOptions tunes one StartSync invocation
type SyncOptions struct {
	// Since overrides the stored watermark when set
	Since *time.Time
	// DryRun simulates the run: nothing is persisted, no audit entries written
	DryRun bool
}

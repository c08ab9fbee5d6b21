// Package remote defines the contracts for the remote collaborators the
// queue drives: the meeting record datastore, the artifact object store,
// and the processing trigger. The queue assumes, and does not implement,
// their idempotency guarantees.
package remote

import (
	"context"
	"io"
	"time"
)

// RecordStatus is the remote meeting record's processing state. The
// executor only ever moves it forward; backward moves happen solely when
// a manual retry reconciles a half-finished attempt.
type RecordStatus string

// Record status values, in pipeline order, plus failure branches.
const (
	StatusRecorded         RecordStatus = "recorded"
	StatusUploading        RecordStatus = "uploading"
	StatusProcessing       RecordStatus = "processing"
	StatusReady            RecordStatus = "ready"
	StatusUploadFailed     RecordStatus = "upload_failed"
	StatusProcessingFailed RecordStatus = "processing_failed"
)

// rank orders the forward pipeline states. Failure branches share the
// rank of the phase they fail out of.
var rank = map[RecordStatus]int{
	StatusRecorded:         0,
	StatusUploading:        1,
	StatusUploadFailed:     1,
	StatusProcessing:       2,
	StatusProcessingFailed: 2,
	StatusReady:            3,
}

// Valid reports whether s is a known record status.
func (s RecordStatus) Valid() bool {
	_, ok := rank[s]
	return ok
}

// CanAdvance reports whether moving the record from one status to another
// is a forward move. Equal-rank moves are allowed so repeated idempotent
// upserts of the same phase succeed.
func CanAdvance(from, to RecordStatus) bool {
	fr, ok := rank[from]
	if !ok {
		return false
	}
	tr, ok := rank[to]
	if !ok {
		return false
	}
	return tr >= fr
}

// RecordStore upserts the status-bearing meeting record keyed by the
// job's deterministic target ID. Upserting the same status twice must
// succeed, per the collaborator contract.
type RecordStore interface {
	// UpsertRecord creates the record if absent, else sets its status.
	UpsertRecord(ctx context.Context, targetID string, status RecordStatus) error
}

// ObjectStore stores uploaded artifacts at deterministic paths.
// Implementations must tolerate repeated uploads to the same key without
// creating distinct identities per attempt.
type ObjectStore interface {
	// Upload writes the artifact at key, overwriting any previous upload.
	Upload(ctx context.Context, key string, r io.Reader, size int64) error

	// SignedURL issues a time-limited read handle for an uploaded object.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// TriggerRequest is the payload accepted by the remote processing
// endpoint. The call returns on acceptance; the downstream pipeline
// mutates the meeting record out of band.
type TriggerRequest struct {
	// AudioURL is the time-limited read handle for the uploaded artifact.
	AudioURL string `json:"audio_url"`

	// MeetingID is the job's target ID.
	MeetingID string `json:"meeting_id"`

	// PushToken is an optional notification target.
	PushToken string `json:"push_token,omitempty"`
}

// Trigger starts remote processing of an uploaded artifact.
type Trigger interface {
	// Process submits the trigger request. It returns once the remote
	// side accepts the work, not when processing finishes.
	Process(ctx context.Context, req TriggerRequest) error
}

// Bridge bundles the three remote collaborators the executor drives.
type Bridge struct {
	Records RecordStore
	Objects ObjectStore
	Trigger Trigger
}

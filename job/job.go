// Package job defines the persisted queue job record and the error
// taxonomy used to classify execution failures.
package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a queued job.
type JobStatus string

// Possible job status values
const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// JobType identifies the pipeline a job runs through.
type JobType string

// Job type constants
const (
	// TypeMeetingUpload is the upload-and-process pipeline for a recorded
	// meeting: upsert the meeting record, upload the audio artifact, then
	// trigger remote processing.
	TypeMeetingUpload JobType = "meeting_upload"
)

// Common validation errors for Job
var (
	ErrEmptyJobID       = errors.New("job ID cannot be empty")
	ErrEmptyArtifactRef = errors.New("job artifact reference cannot be empty")
	ErrEmptyRemoteKey   = errors.New("job remote key cannot be empty")
	ErrEmptyTargetID    = errors.New("job target ID cannot be empty")
	ErrInvalidJobStatus = errors.New("invalid job status")
	ErrInvalidJobType   = errors.New("invalid job type")
	ErrNegativeAttempts = errors.New("job attempts cannot be negative")
)

// Job represents one pending, in-flight, or terminal unit of queued work.
// It is the only authoritative record of an upload's progress; everything
// else (the remote meeting record, the uploaded object) is derived from it.
type Job struct {
	ID          uuid.UUID `json:"id"`
	Type        JobType   `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	ArtifactRef string    `json:"artifact_ref"`
	RemoteKey   string    `json:"remote_key"`
	TargetID    string    `json:"target_id"`
	DurationMs  int64     `json:"duration_ms"`
	PushToken   string    `json:"push_token,omitempty"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	Status      JobStatus `json:"status"`
	NextRunAt   time.Time `json:"next_run_at"`

	// CompletedAt is set when the job reaches completed; it anchors the
	// retention window for garbage collection.
	CompletedAt time.Time `json:"completed_at"`
}

// Metadata carries caller-supplied details about the artifact being
// enqueued.
type Metadata struct {
	// DurationMs is the recording length in milliseconds.
	DurationMs int64

	// PushToken is an optional notification target forwarded to the remote
	// processing trigger. Empty means no notification.
	PushToken string
}

// NewMeetingUpload creates a pending meeting-upload job for the given local
// artifact. The job ID is generated here; the remote key and target ID are
// derived deterministically from it so that repeated remote operations for
// this job are idempotent.
// Returns an error if validation fails.
func NewMeetingUpload(artifactRef string, meta Metadata) (*Job, error) {
	id := uuid.New()
	now := time.Now().UTC()

	j := &Job{
		ID:          id,
		Type:        TypeMeetingUpload,
		CreatedAt:   now,
		ArtifactRef: artifactRef,
		RemoteKey:   RemoteKeyFor(id),
		TargetID:    TargetIDFor(id),
		DurationMs:  meta.DurationMs,
		PushToken:   meta.PushToken,
		Attempts:    0,
		Status:      StatusPending,
		NextRunAt:   now,
	}

	if err := j.Validate(); err != nil {
		return nil, err
	}

	return j, nil
}

// RemoteKeyFor derives the object storage path for a job's artifact from
// its ID. The same job always uploads to the same path.
func RemoteKeyFor(id uuid.UUID) string {
	return fmt.Sprintf("recordings/%s.m4a", id)
}

// TargetIDFor derives the remote meeting record's ID from a job's ID.
func TargetIDFor(id uuid.UUID) string {
	return id.String()
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if !isValidJobType(j.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidJobType, j.Type)
	}

	if j.ArtifactRef == "" {
		return ErrEmptyArtifactRef
	}

	if j.RemoteKey == "" {
		return ErrEmptyRemoteKey
	}

	if j.TargetID == "" {
		return ErrEmptyTargetID
	}

	if !isValidJobStatus(j.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidJobStatus, j.Status)
	}

	if j.Attempts < 0 {
		return ErrNegativeAttempts
	}

	return nil
}

// IsTerminal reports whether the job has reached a state that automatic
// scheduling can no longer advance.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Due reports whether the job is eligible for execution at the given time.
func (j *Job) Due(now time.Time) bool {
	return j.Status == StatusPending && !j.NextRunAt.After(now)
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// isValidJobType checks if the given type is a known JobType.
func isValidJobType(t JobType) bool {
	switch t {
	case TypeMeetingUpload:
		return true
	default:
		return false
	}
}

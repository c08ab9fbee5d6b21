package job

import (
	"errors"
)

// Execution errors classified by the queue. Permanent errors are never
// auto-retried; transient errors are retried with backoff up to the
// attempt ceiling.
var (
	// ErrArtifactMissing is returned when the local artifact no longer
	// exists at its recorded reference. Permanent: the upload can never
	// succeed without the source file.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrArtifactTooLarge is returned when the local artifact exceeds the
	// configured size ceiling. Permanent.
	ErrArtifactTooLarge = errors.New("artifact too large")

	// ErrAuthExpired is returned when the bearer credential for remote
	// calls has expired. Permanent: retrying with the same credential
	// cannot succeed; the user must re-authenticate.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrNetworkUnavailable is returned when a remote call fails at the
	// transport layer. Transient.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrRemoteServer is returned when the remote side rejects or fails a
	// call. Transient.
	ErrRemoteServer = errors.New("remote server error")

	// ErrRecordConflict is returned when the remote record's state
	// conflicts with the requested transition. Transient: the record may
	// still be settling from a previous attempt.
	ErrRecordConflict = errors.New("remote record conflict")
)

// Class partitions execution errors for retry bookkeeping.
type Class int

// Error classes
const (
	// ClassTransient errors are retried with backoff.
	ClassTransient Class = iota

	// ClassPermanent errors move the job straight to failed.
	ClassPermanent
)

// permanent holds the sentinels that end a job without retry.
var permanent = []error{
	ErrArtifactMissing,
	ErrArtifactTooLarge,
	ErrAuthExpired,
}

// Classify maps an execution error onto its retry class. Unrecognized
// errors, including step deadline expiry, are treated as transient so the
// job gets its remaining retry budget.
func Classify(err error) Class {
	for _, p := range permanent {
		if errors.Is(err, p) {
			return ClassPermanent
		}
	}
	return ClassTransient
}

// IsPermanent checks if the error should bypass retry entirely.
func IsPermanent(err error) bool {
	return Classify(err) == ClassPermanent
}

// IsTransient checks if the error is eligible for retry with backoff.
func IsTransient(err error) bool {
	return Classify(err) == ClassTransient
}

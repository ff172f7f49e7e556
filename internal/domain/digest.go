package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// DigestStatus represents the processing state of one digester run
// against one file.
type DigestStatus string

// Possible digest status values
const (
	DigestStatusTodo       DigestStatus = "todo"
	DigestStatusInProgress DigestStatus = "in-progress"
	DigestStatusCompleted  DigestStatus = "completed"
	DigestStatusFailed     DigestStatus = "failed"
	DigestStatusSkipped    DigestStatus = "skipped"
)

// Common validation errors for Digest
var (
	ErrEmptyDigestFilePath = errors.New("digest file path cannot be empty")
	ErrEmptyDigestName     = errors.New("digest digester name cannot be empty")
	ErrInvalidDigestStatus = errors.New("invalid digest status")
)

// Digest is the persisted result of one digester run against one file.
// There is at most one Digest per (FilePath, Digester) pair; the row is
// upserted on every attempt, never duplicated.
type Digest struct {
	ID       string       `json:"id"`
	FilePath string       `json:"file_path"`
	Digester string       `json:"digester"`
	Status   DigestStatus `json:"status"`

	// Content holds extracted text; ArchiveRef points at a stored binary
	// artifact. At most one of the two is meaningfully populated.
	Content    *string `json:"content,omitempty"`
	ArchiveRef *string `json:"archive_ref,omitempty"`

	Error    *string `json:"error,omitempty"`
	Attempts int     `json:"attempts"`

	// Epoch milliseconds, matching the persistence schema.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// DigestID derives the deterministic row key for a (file path, digester)
// pair. The same pair always maps to the same ID, which is what makes
// digest writes upserts rather than inserts.
func DigestID(filePath, digester string) string {
	sum := sha256.Sum256([]byte(filePath + ":" + digester))
	return hex.EncodeToString(sum[:])
}

// NewDigest creates a Digest in the initial todo state for the given
// file path and digester name. Returns an error if validation fails.
func NewDigest(filePath, digester string) (*Digest, error) {
	now := NowUnixMilli()
	d := &Digest{
		ID:        DigestID(filePath, digester),
		FilePath:  filePath,
		Digester:  digester,
		Status:    DigestStatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return d, nil
}

// Validate checks if the Digest has valid data.
func (d *Digest) Validate() error {
	if d.FilePath == "" {
		return ErrEmptyDigestFilePath
	}

	if d.Digester == "" {
		return ErrEmptyDigestName
	}

	if !isValidDigestStatus(d.Status) {
		return ErrInvalidDigestStatus
	}

	return nil
}

// IsTerminal reports whether the digest has reached a state the
// coordinator will not touch again without a cascading reset.
func (d *Digest) IsTerminal() bool {
	switch d.Status {
	case DigestStatusCompleted, DigestStatusSkipped:
		return true
	case DigestStatusFailed:
		return false
	default:
		return false
	}
}

// Retryable reports whether a failed digest may be attempted again
// under the given attempt ceiling.
func (d *Digest) Retryable(maxAttempts int) bool {
	return d.Status == DigestStatusFailed && d.Attempts < maxAttempts
}

// DigesterStats aggregates digest rows per digester for the operational
// surface.
type DigesterStats struct {
	Digester   string `json:"digester"`
	Todo       int    `json:"todo"`
	InProgress int    `json:"in_progress"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
}

func isValidDigestStatus(status DigestStatus) bool {
	switch status {
	case DigestStatusTodo, DigestStatusInProgress, DigestStatusCompleted,
		DigestStatusFailed, DigestStatusSkipped:
		return true
	default:
		return false
	}
}

// NowUnixMilli returns the current wall-clock time in epoch milliseconds,
// the timestamp representation used across the persistence schema.
func NowUnixMilli() int64 {
	return time.Now().UTC().UnixMilli()
}

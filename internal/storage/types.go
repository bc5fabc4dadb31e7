package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Status is the post lifecycle state.
//
//	created -> processing -> completed | partial | failed
//	created -> cancelled
//
// Terminal states are never left; processing is entered exactly once.
type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type OutcomeStatus string

const (
	OutcomeSuccess     OutcomeStatus = "success"
	OutcomeFailed      OutcomeStatus = "failed"
	OutcomeMockSuccess OutcomeStatus = "mock_success"
)

func (s OutcomeStatus) OK() bool {
	return s == OutcomeSuccess || s == OutcomeMockSuccess
}

// TargetOutcome is the final result of one target's attempt sequence.
type TargetOutcome struct {
	Status      OutcomeStatus `json:"status"`
	Detail      string        `json:"detail,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Post is one publish request. Outcomes stays empty until dispatch
// finishes; UpdatedAt advances on every status or outcome mutation.
type Post struct {
	ID             string
	RequesterID    int64
	AssetName      string
	AssetSizeMB    float64
	Caption        string
	CaptionPreview string
	Targets        []string
	Status         Status
	Outcomes       map[string]TargetOutcome
	Simulated      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Prefs are per-requester settings with server-side defaults.
type Prefs struct {
	MockMode         bool
	AutoPublish      bool
	PreferredTargets []string
}

// AuditEntry records one operator action. Kept compact and schema-stable.
type AuditEntry struct {
	At          time.Time
	RequesterID int64
	Action      string
	PostID      string
	Detail      string
}

// Stats summarizes the posts table for /status reporting.
type Stats struct {
	TotalPosts     int
	CompletedPosts int
}

// previewLen bounds the derived caption preview stored alongside the post.
const previewLen = 100

// CaptionPreview derives the cheap display form of a caption once, at post
// creation.
func CaptionPreview(caption string) string {
	r := []rune(caption)
	if len(r) <= previewLen {
		return caption
	}
	return string(r[:previewLen]) + "..."
}

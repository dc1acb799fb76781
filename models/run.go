package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a single scrape execution.
//
//	StatusPending   — run record created, work not yet started
//	StatusRunning   — scraping in progress
//	StatusCompleted — all stories scraped and persisted
//	StatusFailed    — terminated with an unrecoverable error
//
// Transitions are monotonic; Completed and Failed are terminal.
type RunStatus string

const (
	StatusPending   RunStatus = "PENDING"
	StatusRunning   RunStatus = "RUNNING"
	StatusCompleted RunStatus = "COMPLETED"
	StatusFailed    RunStatus = "FAILED"
)

// Terminal reports whether the status permits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ScrapeRun is the execution metadata for one scrape run. It is a value type:
// updates are expressed by the store returning a new value, never by mutating
// an existing one in place.
//
// ExecutionID correlates 1-to-1 with the external trigger, enabling
// correlation between logs and the database record.
type ScrapeRun struct {
	ID          uuid.UUID `json:"id"`
	ExecutionID string    `json:"execution_id"`
	StartedAt   time.Time `json:"started_at"`

	// FinishedAt is nil while the run is in flight; set exactly once by the
	// terminal update.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Status RunStatus `json:"status"`

	// StoriesScraped is the upserted-row count from the terminal update. Nil
	// until completion, and nil on a failure where nothing was salvaged.
	StoriesScraped *int `json:"stories_scraped,omitempty"`

	// ErrorMessage is set only on a FAILED terminal update.
	ErrorMessage *string `json:"error_message,omitempty"`
}

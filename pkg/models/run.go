package models

import "time"

// WindowKind identifies which endpoint a window was requested from
type WindowKind string

const (
	WindowLoadCurve WindowKind = "load_curve"
	WindowDaily     WindowKind = "daily"
)

// WindowOutcome is what happened to a single remote call
type WindowOutcome string

const (
	OutcomeOK           WindowOutcome = "ok"
	OutcomeEndOfHistory WindowOutcome = "end_of_history"
	OutcomeFailed       WindowOutcome = "failed"
)

// WindowAttempt records one remote call made during a backfill
type WindowAttempt struct {
	Kind    WindowKind    `json:"kind"`
	Window  FetchWindow   `json:"window"`
	Outcome WindowOutcome `json:"outcome"`
	Points  int           `json:"points"`
	Error   string        `json:"error,omitempty"`
}

// FetchRun is a run log entry. It never holds the readings themselves.
type FetchRun struct {
	ID           string          `json:"id"`
	UsagePointID string          `json:"usage_point_id"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	FirstDay     time.Time       `json:"first_day"` // Zero when no lower bound was given
	Points       int             `json:"points"`
	FirstPoint   time.Time       `json:"first_point"`
	LastPoint    time.Time       `json:"last_point"`
	LastSum      float64         `json:"last_sum"`
	Published    bool            `json:"published"`
	Windows      []WindowAttempt `json:"windows,omitempty"`
}

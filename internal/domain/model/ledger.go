// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// ActivityType identifies what kind of activity produced a ledger entry.
type ActivityType string

// Scored activity kinds.
const (
	ActivityInitialAssessment ActivityType = "initial_assessment"
	ActivityMRIUpload         ActivityType = "mri_upload"
	ActivityWeeklyForm        ActivityType = "weekly_form"
	ActivityGamePlayed        ActivityType = "game_played"
)

// ActivityTypes lists every scored activity kind.
var ActivityTypes = []ActivityType{
	ActivityInitialAssessment,
	ActivityMRIUpload,
	ActivityWeeklyForm,
	ActivityGamePlayed,
}

// Valid reports whether a is a known activity type.
func (a ActivityType) Valid() bool {
	switch a {
	case ActivityInitialAssessment, ActivityMRIUpload, ActivityWeeklyForm, ActivityGamePlayed:
		return true
	}
	return false
}

// ParseActivityType converts s into an ActivityType.
func ParseActivityType(s string) (ActivityType, error) {
	a := ActivityType(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown activity type %q", s)
	}
	return a, nil
}

// LedgerEntry is one immutable Boost score update.
// NewScore is always derived from PreviousScore, ActivityValue and Weight.
type LedgerEntry struct {
	ID            string         `json:"id"`
	PatientID     string         `json:"patient_id"`
	ActivityType  ActivityType   `json:"activity_type"`
	PreviousScore float64        `json:"previous_score"`
	ActivityValue float64        `json:"activity_value"`
	Weight        float64        `json:"weight"`
	NewScore      float64        `json:"new_score"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Submission is a normalized activity waiting to be folded into the ledger.
// It is the payload carried by the submission queue.
type Submission struct {
	ID            string // idempotency key, e.g. the game session id
	PatientID     string
	ActivityType  ActivityType
	ActivityValue float64
	Weight        *float64 // nil means the activity's default weight
	Metadata      map[string]any
	SubmittedAt   time.Time
}

package simulate

import (
	"time"

	"github.com/fres-sudo/neuravia/internal/domain/scoring"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL         string        // Base URL of the service
	Patients        int           // Number of simulated patients
	GamesPerPatient int           // Client-side game results reported per patient
	HostedSessions  int           // Hosted sessions played over the stream
	Mode            string        // Hosted session mode: short or long
	Difficulty      string        // Hosted session difficulty
	Workers         int           // Number of concurrent workers
	Timeout         time.Duration // HTTP request timeout
	SettleTimeout   time.Duration // How long to wait for the ledger to catch up
	ResendRatio     float64       // Fraction of game results sent twice
	OutputFile      string        // Output file for the run report
	LogFile         string        // Log file for run output
	Verbose         bool          // Enable verbose logging
}

// GameSubmission is a game result reported for a patient.
type GameSubmission struct {
	PatientID string              `json:"patient_id"`
	SessionID string              `json:"session_id"`
	Mode      string              `json:"mode,omitempty"`
	Summary   scoring.GameSummary `json:"summary"`

	// Expected is the activity value the service should record.
	Expected float64 `json:"expected_value"`
}

// LedgerEntry is the subset of a history entry the verifier reads.
type LedgerEntry struct {
	ID            string         `json:"id"`
	PatientID     string         `json:"patient_id"`
	ActivityType  string         `json:"activity_type"`
	ActivityValue float64        `json:"activity_value"`
	NewScore      float64        `json:"new_score"`
	Metadata      map[string]any `json:"metadata"`
}

// AckResponse represents the response from a game submission.
type AckResponse struct {
	SubmissionID string  `json:"submission_id"`
	Status       string  `json:"status"`
	Duplicate    bool    `json:"duplicate"`
	Value        float64 `json:"activity_value"`
}

// Snapshot is the subset of a session view the player reads.
type Snapshot struct {
	State            string     `json:"state"`
	SessionID        string     `json:"session_id"`
	PatientID        string     `json:"patient_id"`
	CurrentRound     int        `json:"current_round"`
	TotalRounds      int        `json:"total_rounds"`
	Score            int        `json:"score"`
	ShowInstructions bool       `json:"show_instructions"`
	Round            *RoundView `json:"round"`
}

// RoundView is the subset of a round view the player reads.
type RoundView struct {
	Game    string `json:"game"`
	Round   int    `json:"round"`
	Phase   string `json:"phase"`
	Markers []any  `json:"markers"`
	Tasks   []any  `json:"tasks"`
	Grid    []int  `json:"grid"`
}

// HostedSession records a session played over the stream.
type HostedSession struct {
	PatientID string `json:"patient_id"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Score     int    `json:"score"`
	Rounds    int    `json:"rounds"`
}

// Stats holds run statistics.
type Stats struct {
	GamesGenerated   int
	GamesSubmitted   int
	GamesAccepted    int
	GamesDuplicate   int
	GamesFailed      int
	SessionsPlayed   int
	SessionsFailed   int
	EntriesVerified  int
	EntriesMissing   int
	EntriesMismatch  int
	PatientsVerified int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}

// Report is written to the output file at the end of a run.
type Report struct {
	Games    []GameSubmission `json:"games"`
	Sessions []HostedSession  `json:"sessions"`
	Stats    Stats            `json:"stats"`
}

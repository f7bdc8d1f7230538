package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fres-sudo/neuravia/internal/adapters/classifier"
	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/scoring"
	"github.com/fres-sudo/neuravia/pkg/logger"
	"github.com/fres-sudo/neuravia/pkg/metrics"
)

// AssessmentResult is the outcome of an initial assessment.
type AssessmentResult struct {
	Entry      model.LedgerEntry  `json:"entry"`
	BaseScore  float64            `json:"base_score"`
	Adjustment scoring.Adjustment `json:"adjustment"`
	Adjusted   bool               `json:"adjusted"`
}

// MRIResult is the outcome of an MRI upload.
type MRIResult struct {
	Entry          model.LedgerEntry         `json:"entry"`
	Classification classifier.Classification `json:"classification"`
}

// GameResult is a game session played outside the service, reported with
// its summary.
type GameResult struct {
	SessionID string              `json:"session_id"`
	Mode      string              `json:"mode,omitempty"`
	Summary   scoring.GameSummary `json:"summary"`
}

// Ack acknowledges an asynchronous submission.
type Ack struct {
	SubmissionID string  `json:"submission_id"`
	Status       string  `json:"status"`
	Duplicate    bool    `json:"duplicate"`
	Value        float64 `json:"activity_value"`
}

func requirePatient(patientID string) error {
	if strings.TrimSpace(patientID) == "" {
		return fmt.Errorf("%w: patient id is required", ErrInvalidSubmission)
	}
	return nil
}

// SubmitAssessment scores a patient's initial assessment and records it.
// Caregiver notes may nudge the score through the completion client; any
// failure there leaves the base score untouched.
func (s *Service) SubmitAssessment(ctx context.Context, patientID string, a scoring.Assessment) (AssessmentResult, error) {
	if err := s.running(); err != nil {
		return AssessmentResult{}, err
	}
	if err := requirePatient(patientID); err != nil {
		return AssessmentResult{}, err
	}
	a, err := a.Normalize()
	if err != nil {
		return AssessmentResult{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}

	base := scoring.BaseAssessmentScore(a)
	value, adj := s.engine.InitialAssessment(ctx, a)
	metrics.RecordAdjustment(adj.Kind.String())
	if !adj.Ok() {
		s.logger.Debug(ctx, "assessment adjustment skipped",
			logger.String("patient_id", patientID),
			logger.String("reason", adj.Reason),
		)
	}

	md := map[string]any{
		"diagnosis":         string(a.Diagnosis),
		"base_score":        base,
		"adjustment":        adj.Value,
		"adjustment_status": adj.Kind.String(),
	}
	if a.Stage != "" {
		md["stage"] = string(a.Stage)
	}
	if a.Notes != "" {
		md["notes"] = a.Notes
	}
	if adj.Reason != "" {
		md["adjustment_reason"] = adj.Reason
	}

	entry, err := s.Record(ctx, model.Submission{
		ID:            uuid.NewString(),
		PatientID:     patientID,
		ActivityType:  model.ActivityInitialAssessment,
		ActivityValue: value,
		Metadata:      md,
	})
	if err != nil {
		return AssessmentResult{}, err
	}
	return AssessmentResult{Entry: entry, BaseScore: base, Adjustment: adj, Adjusted: adj.Ok()}, nil
}

// SubmitMRI classifies a scan and records the resulting activity value.
// Classification failures are returned to the caller unchanged.
func (s *Service) SubmitMRI(ctx context.Context, patientID, filename string, image []byte) (MRIResult, error) {
	if err := s.running(); err != nil {
		return MRIResult{}, err
	}
	if err := requirePatient(patientID); err != nil {
		return MRIResult{}, err
	}
	if s.classifier == nil {
		return MRIResult{}, ErrClassifierDisabled
	}

	c, err := s.classifier.Classify(ctx, filename, image)
	if err != nil {
		metrics.RecordErrorByComponent("service", "classify")
		return MRIResult{}, err
	}

	md := map[string]any{
		"filename":        filename,
		"predicted_label": c.PredictedLabel,
		"confidence":      c.Confidence,
		"probabilities":   c.Probabilities[:],
		"labels":          c.Labels,
	}
	if c.Raw != nil {
		md["raw"] = c.Raw
	}

	entry, err := s.Record(ctx, model.Submission{
		ID:            uuid.NewString(),
		PatientID:     patientID,
		ActivityType:  model.ActivityMRIUpload,
		ActivityValue: c.Score(),
		Metadata:      md,
	})
	if err != nil {
		return MRIResult{}, err
	}
	return MRIResult{Entry: entry, Classification: c}, nil
}

// SubmitDiary scores a weekly diary and records it.
func (s *Service) SubmitDiary(ctx context.Context, patientID string, d model.WeeklyDiary) (model.LedgerEntry, error) {
	if err := s.running(); err != nil {
		return model.LedgerEntry{}, err
	}
	if err := requirePatient(patientID); err != nil {
		return model.LedgerEntry{}, err
	}
	if err := d.Validate(); err != nil {
		return model.LedgerEntry{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	return s.Record(ctx, model.Submission{
		ID:            uuid.NewString(),
		PatientID:     patientID,
		ActivityType:  model.ActivityWeeklyForm,
		ActivityValue: scoring.NormalizeWeeklyForm(d.Ratings()),
		Metadata:      d.Metadata(),
	})
}

// SubmitGame queues a game session played outside the service. The session
// id is the idempotency key: reporting the same session twice records it
// once.
func (s *Service) SubmitGame(ctx context.Context, patientID string, g GameResult) (Ack, error) {
	if err := s.running(); err != nil {
		return Ack{}, err
	}
	if err := requirePatient(patientID); err != nil {
		return Ack{}, err
	}
	if strings.TrimSpace(g.SessionID) == "" {
		return Ack{}, fmt.Errorf("%w: session id is required", ErrInvalidSubmission)
	}
	if g.Summary.GamesCompletedCount < 0 || g.Summary.SessionDurationMs < 0 {
		return Ack{}, fmt.Errorf("%w: summary counts must not be negative", ErrInvalidSubmission)
	}

	value := scoring.NormalizeGamePlayed(g.Summary)
	md := map[string]any{
		"session_id": g.SessionID,
		"summary":    g.Summary,
		"source":     "client",
	}
	if g.Mode != "" {
		md["mode"] = g.Mode
	}

	dup, err := s.enqueue(ctx, model.Submission{
		ID:            g.SessionID,
		PatientID:     patientID,
		ActivityType:  model.ActivityGamePlayed,
		ActivityValue: value,
		Metadata:      md,
	})
	if err != nil {
		return Ack{}, err
	}
	if dup {
		return Ack{SubmissionID: g.SessionID, Status: "duplicate", Duplicate: true}, nil
	}
	return Ack{SubmissionID: g.SessionID, Status: "accepted", Value: value}, nil
}

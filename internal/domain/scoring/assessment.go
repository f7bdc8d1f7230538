package scoring

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Diagnosis is the caregiver reported diagnosis status.
type Diagnosis string

// Known diagnoses.
const (
	DiagnosisNone      Diagnosis = "none"
	DiagnosisSuspected Diagnosis = "suspected"
	DiagnosisConfirmed Diagnosis = "confirmed"
)

// ParseDiagnosis accepts a diagnosis in any case.
func ParseDiagnosis(s string) (Diagnosis, error) {
	switch d := Diagnosis(strings.ToLower(strings.TrimSpace(s))); d {
	case DiagnosisNone, DiagnosisSuspected, DiagnosisConfirmed:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDiagnosis, s)
}

// Stage is the reported severity stage. Ignored when the diagnosis is none.
type Stage string

// Known stages.
const (
	StageMild     Stage = "mild"
	StageModerate Stage = "moderate"
	StageSevere   Stage = "severe"
)

// ParseStage accepts a stage in any case.
func ParseStage(s string) (Stage, error) {
	switch st := Stage(strings.ToLower(strings.TrimSpace(s))); st {
	case StageMild, StageModerate, StageSevere:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
}

// Assessment is the initial intake of a patient.
type Assessment struct {
	Diagnosis Diagnosis `json:"diagnosis"`
	Stage     Stage     `json:"stage,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// Normalize canonicalises the diagnosis and stage. A stage is required
// unless the diagnosis is none, in which case it is dropped.
func (a Assessment) Normalize() (Assessment, error) {
	d, err := ParseDiagnosis(string(a.Diagnosis))
	if err != nil {
		return Assessment{}, err
	}
	a.Diagnosis = d
	if d == DiagnosisNone {
		a.Stage = ""
		return a, nil
	}
	st, err := ParseStage(string(a.Stage))
	if err != nil {
		return Assessment{}, err
	}
	a.Stage = st
	return a, nil
}

// Assessment bounds and adjustment range.
const (
	assessmentMin = 1.0
	MaxAdjustment = 10
)

var diagnosisBase = map[Diagnosis]float64{
	DiagnosisNone:      85,
	DiagnosisSuspected: 65,
	DiagnosisConfirmed: 45,
}

var stageModifier = map[Stage]float64{
	StageMild:     0,
	StageModerate: -15,
	StageSevere:   -30,
}

// BaseAssessmentScore is the deterministic part of the assessment score.
// Unknown diagnoses are treated as none.
func BaseAssessmentScore(a Assessment) float64 {
	base, ok := diagnosisBase[a.Diagnosis]
	if !ok {
		base = diagnosisBase[DiagnosisNone]
	}
	if a.Diagnosis != DiagnosisNone && ok {
		base += stageModifier[a.Stage]
	}
	return Clamp(base, assessmentMin, MaxScore)
}

// AdjustmentKind tags the outcome of a notes adjustment.
type AdjustmentKind int

// Adjustment outcomes.
const (
	AdjustmentFallback AdjustmentKind = iota
	AdjustmentOK
)

func (k AdjustmentKind) String() string {
	if k == AdjustmentOK {
		return "ok"
	}
	return "fallback"
}

// Adjustment is either Ok(Value) or Fallback(Reason).
type Adjustment struct {
	Kind   AdjustmentKind `json:"-"`
	Value  int            `json:"value"`
	Reason string         `json:"reason,omitempty"`
}

// Ok reports whether the adjustment should be applied.
func (a Adjustment) Ok() bool { return a.Kind == AdjustmentOK }

// Fallback builds a fallback adjustment.
func Fallback(reason string) Adjustment {
	return Adjustment{Kind: AdjustmentFallback, Reason: reason}
}

// Adjuster turns free-text caregiver notes into a bounded score adjustment.
// Implementations never fail; problems come back as Fallback.
type Adjuster interface {
	Adjust(ctx context.Context, notes string) Adjustment
}

// NormalizeInitialAssessment scores an intake. The adjuster is only asked
// when notes are present; adj may be nil.
func NormalizeInitialAssessment(ctx context.Context, a Assessment, adj Adjuster) (float64, Adjustment) {
	base := BaseAssessmentScore(a)
	if strings.TrimSpace(a.Notes) == "" {
		return base, Fallback("no notes")
	}
	if adj == nil {
		return base, Fallback("no adjuster configured")
	}
	res := adj.Adjust(ctx, a.Notes)
	if !res.Ok() || res.Value < -MaxAdjustment || res.Value > MaxAdjustment {
		if res.Ok() {
			res = Fallback(fmt.Sprintf("adjustment %d out of range", res.Value))
		}
		return base, res
	}
	return Clamp(base+float64(res.Value), assessmentMin, MaxScore), res
}

// Completer is the text-completion boundary.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const adjustmentPrompt = `You are assisting a caregiver who tracks a patient with cognitive decline.
Read the caregiver notes below and answer with a single integer between -%d and %d
describing how much the patient's wellness score should move. Negative means worse,
positive means better, 0 means no change. Answer with the integer only.

Notes:
%s`

// singleInteger matches a response containing exactly one integer.
var singleInteger = regexp.MustCompile(`^[^0-9+-]*([+-]?\d+)[^0-9]*$`)

// CompletionAdjuster asks a Completer for the adjustment.
type CompletionAdjuster struct {
	completer Completer
	timeout   time.Duration
}

// AdjusterOption configures a CompletionAdjuster.
type AdjusterOption func(*CompletionAdjuster)

// WithAdjustTimeout bounds a single completion call.
func WithAdjustTimeout(d time.Duration) AdjusterOption {
	return func(a *CompletionAdjuster) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewCompletionAdjuster builds an Adjuster backed by c.
func NewCompletionAdjuster(c Completer, opts ...AdjusterOption) *CompletionAdjuster {
	a := &CompletionAdjuster{completer: c, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Adjust implements Adjuster.
func (a *CompletionAdjuster) Adjust(ctx context.Context, notes string) (out Adjustment) {
	if a == nil || a.completer == nil {
		return Fallback("no completer configured")
	}
	defer func() {
		if r := recover(); r != nil {
			out = Fallback(fmt.Sprintf("completer panicked: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.completer.Complete(ctx, fmt.Sprintf(adjustmentPrompt, MaxAdjustment, MaxAdjustment, notes))
	if err != nil {
		return Fallback("completion failed: " + err.Error())
	}
	return ParseAdjustment(resp)
}

// ParseAdjustment extracts a bounded integer from a completion response.
func ParseAdjustment(resp string) Adjustment {
	m := singleInteger.FindStringSubmatch(strings.TrimSpace(resp))
	if m == nil {
		return Fallback(fmt.Sprintf("unparseable response %q", resp))
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return Fallback(fmt.Sprintf("unparseable response %q", resp))
	}
	if v < -MaxAdjustment || v > MaxAdjustment {
		return Fallback(fmt.Sprintf("adjustment %d out of range", v))
	}
	return Adjustment{Kind: AdjustmentOK, Value: v}
}

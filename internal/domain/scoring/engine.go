package scoring

import (
	"context"
	"fmt"

	"github.com/fres-sudo/neuravia/internal/domain/model"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights overrides default weights per activity type. Non-positive
// weights and unknown activity types are ignored.
func WithWeights(weights map[model.ActivityType]float64) Option {
	return func(e *Engine) {
		for a, w := range weights {
			if a.Valid() && w > 0 {
				e.weights[a] = w
			}
		}
	}
}

// WithWeightPolicy sets how caller supplied weights are validated.
func WithWeightPolicy(p WeightPolicy) Option {
	return func(e *Engine) {
		if p != "" {
			e.policy = p
		}
	}
}

// WithAdjuster sets the notes adjuster for initial assessments.
func WithAdjuster(a Adjuster) Option {
	return func(e *Engine) {
		e.adjuster = a
	}
}

// Input is one activity value to be folded into a running score.
type Input struct {
	PatientID     string
	ActivityType  model.ActivityType
	PreviousScore float64
	ActivityValue float64
	Weight        *float64 // nil uses the configured weight
}

// Result contains the computed update.
type Result struct {
	PatientID     string
	ActivityValue float64
	Weight        float64
	NewScore      float64
}

// Scorer folds an activity value into a running score.
type Scorer interface {
	Score(ctx context.Context, in Input) (Result, error)
}

// Engine is the configurable Scorer used by the service.
type Engine struct {
	weights  map[model.ActivityType]float64
	policy   WeightPolicy
	adjuster Adjuster
}

// NewEngine creates an engine with the default weights and clamp policy.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights: map[model.ActivityType]float64{
			model.ActivityInitialAssessment: WeightInitialAssessment,
			model.ActivityMRIUpload:         WeightMRIUpload,
			model.ActivityWeeklyForm:        WeightWeeklyForm,
			model.ActivityGamePlayed:        WeightGamePlayed,
		},
		policy: WeightPolicyClamp,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weight resolves the weight for a, applying the policy to an override.
func (e *Engine) Weight(a model.ActivityType, override *float64) (float64, error) {
	if !a.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownActivity, a)
	}
	if override == nil {
		return e.weights[a], nil
	}
	return e.policy.Apply(*override)
}

// Score implements Scorer.
func (e *Engine) Score(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}
	w, err := e.Weight(in.ActivityType, in.Weight)
	if err != nil {
		return Result{}, err
	}
	value := Clamp(in.ActivityValue, MinScore, MaxScore)
	return Result{
		PatientID:     in.PatientID,
		ActivityValue: value,
		Weight:        w,
		NewScore:      UpdateScore(in.PreviousScore, value, w),
	}, nil
}

// InitialAssessment scores an intake with the configured adjuster.
func (e *Engine) InitialAssessment(ctx context.Context, a Assessment) (float64, Adjustment) {
	return NormalizeInitialAssessment(ctx, a, e.adjuster)
}

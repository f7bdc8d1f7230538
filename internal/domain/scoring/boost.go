// Package scoring implements the Boost score engine: normalization of raw
// activity outcomes into a 0-100 activity value and the weighted update that
// folds an activity value into a patient's running score.
//
// Everything here is deterministic. The only outbound call is the optional
// notes adjustment of an initial assessment, which goes through an Adjuster
// and always falls back to the unadjusted score.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/fres-sudo/neuravia/internal/domain/model"
)

// Score bounds.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Default weights per activity type, from formal assessment down to gameplay.
const (
	WeightInitialAssessment = 1.0
	WeightMRIUpload         = 0.8
	WeightWeeklyForm        = 0.6
	WeightGamePlayed        = 0.4
)

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// UpdateScore moves previous toward activityValue by weight of the gap and
// clamps the result to [0, 100]. weight 1 yields the clamped activity value,
// weight 0 leaves previous unchanged.
func UpdateScore(previous, activityValue, weight float64) float64 {
	return Clamp(previous+(activityValue-previous)*weight, MinScore, MaxScore)
}

// DefaultWeight returns the weight used for a when the caller gives none.
func DefaultWeight(a model.ActivityType) (float64, error) {
	switch a {
	case model.ActivityInitialAssessment:
		return WeightInitialAssessment, nil
	case model.ActivityMRIUpload:
		return WeightMRIUpload, nil
	case model.ActivityWeeklyForm:
		return WeightWeeklyForm, nil
	case model.ActivityGamePlayed:
		return WeightGamePlayed, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownActivity, a)
}

// WeightPolicy decides what happens to caller supplied weights outside (0, 1].
type WeightPolicy string

// Supported weight policies.
const (
	WeightPolicyClamp       WeightPolicy = "clamp"
	WeightPolicyReject      WeightPolicy = "reject"
	WeightPolicyPassthrough WeightPolicy = "passthrough"
)

// ParseWeightPolicy converts s into a WeightPolicy. Empty means clamp.
func ParseWeightPolicy(s string) (WeightPolicy, error) {
	switch p := WeightPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return WeightPolicyClamp, nil
	case WeightPolicyClamp, WeightPolicyReject, WeightPolicyPassthrough:
		return p, nil
	}
	return "", fmt.Errorf("unknown weight policy %q", s)
}

// Apply enforces the policy on w.
func (p WeightPolicy) Apply(w float64) (float64, error) {
	if math.IsNaN(w) {
		return 0, fmt.Errorf("%w: NaN", ErrInvalidWeight)
	}
	switch p {
	case WeightPolicyPassthrough:
		return w, nil
	case WeightPolicyReject:
		if w <= 0 || w > 1 {
			return 0, fmt.Errorf("%w: %v not in (0, 1]", ErrInvalidWeight, w)
		}
		return w, nil
	default:
		return Clamp(w, 0, 1), nil
	}
}

package model

import (
	"errors"
	"fmt"
)

// ErrInvalidRating is returned for diary ratings outside 1-5.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// Rating bounds of the weekly diary.
const (
	MinRating = 1
	MaxRating = 5
)

// WeeklyDiary is the caregiver's weekly check-in. Every field is a 1-5
// rating where 5 is best.
type WeeklyDiary struct {
	Memory          int    `json:"memory"`
	Orientation     int    `json:"orientation"`
	Communication   int    `json:"communication"`
	DailyActivities int    `json:"daily_activities"`
	MoodBehaviour   int    `json:"mood_behaviour"`
	Sleep           int    `json:"sleep"`
	Social          int    `json:"social"`
	Notes           string `json:"notes,omitempty"`
}

// Ratings returns the seven ratings in form order.
func (d WeeklyDiary) Ratings() []int {
	return []int{d.Memory, d.Orientation, d.Communication, d.DailyActivities, d.MoodBehaviour, d.Sleep, d.Social}
}

var ratingNames = [...]string{"memory", "orientation", "communication", "daily_activities", "mood_behaviour", "sleep", "social"}

// Validate checks every rating is within bounds.
func (d WeeklyDiary) Validate() error {
	var errs []error
	for i, r := range d.Ratings() {
		if r < MinRating || r > MaxRating {
			errs = append(errs, fmt.Errorf("%s: %w, got %d", ratingNames[i], ErrInvalidRating, r))
		}
	}
	return errors.Join(errs...)
}

// Metadata is the ledger metadata recorded for a diary.
func (d WeeklyDiary) Metadata() map[string]any {
	md := make(map[string]any, len(ratingNames)+1)
	for i, r := range d.Ratings() {
		md[ratingNames[i]] = r
	}
	if d.Notes != "" {
		md["notes"] = d.Notes
	}
	return md
}

// Package types contains read shapes shared by the service and the HTTP API.
package types

import (
	"time"

	"github.com/fres-sudo/neuravia/internal/domain/model"
)

// LatestScore is a patient's current Boost score.
type LatestScore struct {
	PatientID string    `json:"patient_id"`
	Score     float64   `json:"score"`
	HasScore  bool      `json:"has_score"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// HistoryFilter narrows a ledger history query.
type HistoryFilter struct {
	ActivityType model.ActivityType // empty means every type
	Limit        int                // <= 0 means no limit
}

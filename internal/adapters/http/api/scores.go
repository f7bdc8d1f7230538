package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/types"
)

// ScoreDependencies are the read operations of the boost ledger.
type ScoreDependencies interface {
	LatestScore(ctx context.Context, patientID string) (types.LatestScore, error)
	History(ctx context.Context, patientID string, filter types.HistoryFilter) ([]model.LedgerEntry, error)
}

// ScoresHandler serves a patient's current score and ledger history.
type ScoresHandler struct {
	deps     ScoreDependencies
	maxLimit int
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies, maxLimit int) *ScoresHandler {
	return &ScoresHandler{deps: deps, maxLimit: maxLimit}
}

type historyResponse struct {
	PatientID string              `json:"patient_id"`
	Entries   []model.LedgerEntry `json:"entries"`
}

// HandleLatest handles GET /patients/{id}/score requests.
func (h *ScoresHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	patientID, err := patientFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	latest, err := h.deps.LatestScore(r.Context(), patientID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

// HandleHistory handles GET /patients/{id}/history?type=&limit= requests.
func (h *ScoresHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	patientID, err := patientFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	filter, err := h.parseFilter(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	entries, err := h.deps.History(r.Context(), patientID, filter)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{PatientID: patientID, Entries: entries})
}

func (h *ScoresHandler) parseFilter(r *http.Request) (types.HistoryFilter, error) {
	const op = "api.history"
	var f types.HistoryFilter
	q := r.URL.Query()

	if raw := q.Get("type"); raw != "" {
		t, err := model.ParseActivityType(raw)
		if err != nil {
			return f, WrapKind(op, ErrBadRequest, err)
		}
		f.ActivityType = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.maxLimit {
			return f, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be between 1 and %d", h.maxLimit))
		}
		f.Limit = n
	}
	return f, nil
}

func patientFromPath(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", NewKind("api.patient", ErrBadRequest)
	}
	return id, nil
}

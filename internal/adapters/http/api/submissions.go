package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	service "github.com/fres-sudo/neuravia/internal/app"
	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/scoring"
)

// mriFormField is the multipart field carrying the scan.
const mriFormField = "file"

// SubmissionDependencies are the write operations of the boost ledger.
type SubmissionDependencies interface {
	SubmitAssessment(ctx context.Context, patientID string, a scoring.Assessment) (service.AssessmentResult, error)
	SubmitMRI(ctx context.Context, patientID, filename string, image []byte) (service.MRIResult, error)
	SubmitDiary(ctx context.Context, patientID string, d model.WeeklyDiary) (model.LedgerEntry, error)
	SubmitGame(ctx context.Context, patientID string, g service.GameResult) (service.Ack, error)
}

// SubmissionHandler turns caregiver submissions into ledger entries.
type SubmissionHandler struct {
	deps           SubmissionDependencies
	maxUploadBytes int64
}

// NewSubmissionHandler creates a new submission handler.
func NewSubmissionHandler(deps SubmissionDependencies, maxUploadBytes int64) *SubmissionHandler {
	return &SubmissionHandler{deps: deps, maxUploadBytes: maxUploadBytes}
}

// HandleAssessment handles POST /patients/{id}/assessment requests.
func (h *SubmissionHandler) HandleAssessment(w http.ResponseWriter, r *http.Request) {
	const op = "api.assessment"
	patientID, err := patientFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req scoring.Assessment
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.SubmitAssessment(r.Context(), patientID, req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleMRI handles POST /patients/{id}/mri multipart uploads.
func (h *SubmissionHandler) HandleMRI(w http.ResponseWriter, r *http.Request) {
	const op = "api.mri"
	patientID, err := patientFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile(mriFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, NewKind(op, ErrTooLarge))
			return
		}
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(image) == 0 {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("empty upload")))
		return
	}

	res, err := h.deps.SubmitMRI(r.Context(), patientID, header.Filename, image)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleDiary handles POST /patients/{id}/diary requests.
func (h *SubmissionHandler) HandleDiary(w http.ResponseWriter, r *http.Request) {
	const op = "api.diary"
	patientID, err := patientFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req model.WeeklyDiary
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	entry, err := h.deps.SubmitDiary(r.Context(), patientID, req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleGame handles POST /patients/{id}/games requests. Accepted results
// are recorded asynchronously.
func (h *SubmissionHandler) HandleGame(w http.ResponseWriter, r *http.Request) {
	const op = "api.games"
	patientID, err := patientFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req service.GameResult
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	ack, err := h.deps.SubmitGame(r.Context(), patientID, req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	status := http.StatusAccepted
	if ack.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, ack)
}

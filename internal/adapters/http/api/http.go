// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fres-sudo/neuravia/internal/adapters/classifier"
	"github.com/fres-sudo/neuravia/internal/adapters/completion"
	service "github.com/fres-sudo/neuravia/internal/app"
	"github.com/fres-sudo/neuravia/pkg/logger"
	"github.com/fres-sudo/neuravia/pkg/metrics"
)

// Request limits.
const (
	defaultMaxHistoryLimit = 100
	defaultMaxUploadBytes  = 10 << 20
	maxJSONBodyBytes       = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	ScoreDependencies
	SubmissionDependencies
	SessionDependencies
	EmojiDependencies
}

// Option configures a Server.
type Option func(*Server)

// WithMaxHistoryLimit caps the limit parameter of history queries.
func WithMaxHistoryLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxHistoryLimit = n
		}
	}
}

// WithMaxUploadBytes caps the size of an MRI upload.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithLogger sets the logger used by the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	maxHistoryLimit int
	maxUploadBytes  int64
	logger          logger.Logger

	healthHandler     *HealthHandler
	scoresHandler     *ScoresHandler
	submissionHandler *SubmissionHandler
	sessionsHandler   *SessionsHandler
	emojiHandler      *EmojiHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		maxHistoryLimit: defaultMaxHistoryLimit,
		maxUploadBytes:  defaultMaxUploadBytes,
		logger:          logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(statsProvider)
	s.scoresHandler = NewScoresHandler(deps, s.maxHistoryLimit)
	s.submissionHandler = NewSubmissionHandler(deps, s.maxUploadBytes)
	s.sessionsHandler = NewSessionsHandler(deps, s.logger)
	s.emojiHandler = NewEmojiHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	if metrics.Enabled() {
		mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	}
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.healthHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /patients/{id}/score", MetricsMiddleware(s.scoresHandler.HandleLatest, "patient_score"))
	mux.HandleFunc("GET /patients/{id}/history", MetricsMiddleware(s.scoresHandler.HandleHistory, "patient_history"))
	mux.HandleFunc("POST /patients/{id}/assessment", MetricsMiddleware(s.submissionHandler.HandleAssessment, "assessment"))
	mux.HandleFunc("POST /patients/{id}/mri", MetricsMiddleware(s.submissionHandler.HandleMRI, "mri"))
	mux.HandleFunc("POST /patients/{id}/diary", MetricsMiddleware(s.submissionHandler.HandleDiary, "diary"))
	mux.HandleFunc("POST /patients/{id}/games", MetricsMiddleware(s.submissionHandler.HandleGame, "games"))

	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleStart, "session_start"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGet, "session_get"))
	mux.HandleFunc("DELETE /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleEnd, "session_end"))
	mux.HandleFunc("POST /sessions/{id}/actions", MetricsMiddleware(s.sessionsHandler.HandleAct, "session_act"))
	mux.HandleFunc("POST /sessions/{id}/instructions/dismiss", MetricsMiddleware(s.sessionsHandler.HandleDismiss, "session_dismiss"))
	mux.HandleFunc("PUT /sessions/{id}/settings", MetricsMiddleware(s.sessionsHandler.HandleSettings, "session_settings"))
	mux.HandleFunc("GET /sessions/{id}/stream", MetricsMiddleware(s.sessionsHandler.HandleStream, "session_stream"))

	mux.HandleFunc("GET /emojis", MetricsMiddleware(s.emojiHandler.HandleEmojis, "emojis"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps an upstream error kind onto a status code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidSubmission),
		errors.Is(err, completion.ErrMissingJobName):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrTooManySessions):
		return http.StatusTooManyRequests, "too_many_sessions"
	case errors.Is(err, classifier.ErrClassification):
		return http.StatusBadGateway, "classification_failed"
	case errors.Is(err, completion.ErrCompletion), errors.Is(err, completion.ErrInvalidEmojis):
		return http.StatusBadGateway, "completion_failed"
	case errors.Is(err, service.ErrClassifierDisabled),
		errors.Is(err, service.ErrCompletionDisabled),
		errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrTooLarge
		}
		return err
	}
	return nil
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	service "github.com/fres-sudo/neuravia/internal/app"
	"github.com/fres-sudo/neuravia/internal/domain/game"
	"github.com/fres-sudo/neuravia/pkg/logger"
)

// Stream timing.
const (
	streamWriteWait = 5 * time.Second
	streamReadLimit = 4 << 10
)

// Stream client message types.
const (
	streamMsgAct     = "act"
	streamMsgDismiss = "dismiss"
)

// SessionDependencies drive hosted game sessions.
type SessionDependencies interface {
	StartSession(ctx context.Context, req service.SessionRequest) (game.Snapshot, error)
	Session(ctx context.Context, id string) (game.Snapshot, error)
	Act(ctx context.Context, id string, a game.Action) (bool, game.Snapshot, error)
	DismissInstructions(ctx context.Context, id string) (bool, game.Snapshot, error)
	UpdateSettings(ctx context.Context, id string, t game.SettingsTable) (game.Snapshot, error)
	EndSession(ctx context.Context, id string) (game.Snapshot, error)
	Subscribe(ctx context.Context, id string) (<-chan game.Snapshot, func(), error)
}

// SessionsHandler exposes hosted sessions over HTTP and a websocket stream.
type SessionsHandler struct {
	deps     SessionDependencies
	logger   logger.Logger
	upgrader websocket.Upgrader
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies, l logger.Logger) *SessionsHandler {
	return &SessionsHandler{
		deps:   deps,
		logger: l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

type startSessionRequest struct {
	PatientID string       `json:"patient_id"`
	Mode      string       `json:"mode"`
	Profile   game.Profile `json:"profile"`
}

// actionResponse reports whether an input was applied and the resulting view.
type actionResponse struct {
	Applied bool          `json:"applied"`
	Session game.Snapshot `json:"session"`
}

type settingsRequest struct {
	Settings game.SettingsTable `json:"settings"`
}

// streamMessage is a client frame on the session stream.
type streamMessage struct {
	Type   string `json:"type"`
	Target int    `json:"target"`
}

// HandleStart handles POST /sessions requests.
func (h *SessionsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.session_start"
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	snap, err := h.deps.StartSession(r.Context(), service.SessionRequest{
		PatientID: req.PatientID,
		Mode:      req.Mode,
		Profile:   req.Profile,
	})
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// HandleGet handles GET /sessions/{id} requests.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := sessionFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	snap, err := h.deps.Session(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleEnd handles DELETE /sessions/{id} requests. The session is aborted
// and nothing is recorded.
func (h *SessionsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	id, err := sessionFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	snap, err := h.deps.EndSession(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleAct handles POST /sessions/{id}/actions requests.
func (h *SessionsHandler) HandleAct(w http.ResponseWriter, r *http.Request) {
	const op = "api.session_act"
	id, err := sessionFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var a game.Action
	if err := decodeJSON(w, r, &a); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	applied, snap, err := h.deps.Act(r.Context(), id, a)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Applied: applied, Session: snap})
}

// HandleDismiss handles POST /sessions/{id}/instructions/dismiss requests.
func (h *SessionsHandler) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	id, err := sessionFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	applied, snap, err := h.deps.DismissInstructions(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Applied: applied, Session: snap})
}

// HandleSettings handles PUT /sessions/{id}/settings requests.
func (h *SessionsHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	const op = "api.session_settings"
	id, err := sessionFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	snap, err := h.deps.UpdateSettings(r.Context(), id, req.Settings)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleStream handles GET /sessions/{id}/stream. Every view change is
// pushed as a JSON frame; clients may send act and dismiss frames back.
// The socket closes once the session stops playing.
func (h *SessionsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id, err := sessionFromPath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	updates, cancel, err := h.deps.Subscribe(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn(r.Context(), "session stream upgrade failed",
			logger.String("session_id", id),
			logger.Error(err),
		)
		return
	}
	defer conn.Close()

	ctx := context.WithoutCancel(r.Context())
	go h.readStream(ctx, conn, id, cancel)

	for snap := range updates {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(snap); err != nil {
			h.logger.Debug(ctx, "session stream write failed",
				logger.String("session_id", id),
				logger.Error(err),
			)
			return
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
}

// readStream applies client frames until the connection fails, then drops
// the subscription so the writer returns.
func (h *SessionsHandler) readStream(ctx context.Context, conn *websocket.Conn, id string, cancel func()) {
	defer cancel()
	conn.SetReadLimit(streamReadLimit)
	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		var err error
		switch msg.Type {
		case streamMsgAct:
			_, _, err = h.deps.Act(ctx, id, game.Action{Target: msg.Target})
		case streamMsgDismiss:
			_, _, err = h.deps.DismissInstructions(ctx, id)
		default:
			h.logger.Debug(ctx, "unknown stream message",
				logger.String("session_id", id),
				logger.String("type", msg.Type),
			)
			continue
		}
		if errors.Is(err, service.ErrSessionNotFound) {
			return
		}
	}
}

func sessionFromPath(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", NewKind("api.session", ErrBadRequest)
	}
	return id, nil
}

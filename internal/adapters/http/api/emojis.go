package api

import (
	"context"
	"net/http"
	"strings"
)

// EmojiDependencies supplies profession emojis for game assets.
type EmojiDependencies interface {
	Emojis(ctx context.Context, profession string) ([]string, error)
}

// EmojiHandler serves profession emojis.
type EmojiHandler struct {
	deps EmojiDependencies
}

// NewEmojiHandler creates a new emoji handler.
func NewEmojiHandler(deps EmojiDependencies) *EmojiHandler {
	return &EmojiHandler{deps: deps}
}

type emojiResponse struct {
	Profession string   `json:"profession"`
	Emojis     []string `json:"emojis"`
}

// HandleEmojis handles GET /emojis?profession= requests.
func (h *EmojiHandler) HandleEmojis(w http.ResponseWriter, r *http.Request) {
	const op = "api.emojis"
	profession := strings.TrimSpace(r.URL.Query().Get("profession"))
	if profession == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	emojis, err := h.deps.Emojis(r.Context(), profession)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, emojiResponse{Profession: profession, Emojis: emojis})
}

package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fres-sudo/neuravia/internal/adapters/resilience"
	"github.com/fres-sudo/neuravia/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func chatServer(t *testing.T, status int, content string, hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 1 {
			t.Errorf("bad request body: %v", err)
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":"overloaded"}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
}

func newTestClient(url string, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(url + "/v1/"),
		WithAPIKey("secret"),
		WithLogger(logger.Nop()),
		WithRateLimit(1000, 10),
	}
	return New(append(base, opts...)...)
}

func TestClient_Complete(t *testing.T) {
	Convey("Given a completion endpoint", t, func() {
		Convey("When the provider answers", func() {
			srv := chatServer(t, http.StatusOK, "-4", nil)
			defer srv.Close()

			out, err := newTestClient(srv.URL).Complete(context.Background(), "notes")

			Convey("Then the first choice content should be returned", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "-4")
			})
		})

		Convey("When the provider returns no content", func() {
			srv := chatServer(t, http.StatusOK, "   ", nil)
			defer srv.Close()

			_, err := newTestClient(srv.URL).Complete(context.Background(), "notes")

			Convey("Then ErrEmptyResponse should be wrapped in ErrCompletion", func() {
				So(errors.Is(err, ErrCompletion), ShouldBeTrue)
				So(errors.Is(err, ErrEmptyResponse), ShouldBeTrue)
			})
		})

		Convey("When the provider keeps failing", func() {
			var hits atomic.Int32
			srv := chatServer(t, http.StatusServiceUnavailable, "", &hits)
			defer srv.Close()

			c := newTestClient(srv.URL, WithBreaker(resilience.BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute}))
			_, err1 := c.Complete(context.Background(), "a")
			_, _ = c.Complete(context.Background(), "b")
			_, err3 := c.Complete(context.Background(), "c")

			Convey("Then the breaker should open and stop calling the provider", func() {
				So(err1, ShouldNotBeNil)
				So(err1.Error(), ShouldContainSubstring, "status 503")
				So(resilience.IsOpen(err3), ShouldBeTrue)
				So(hits.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the context is already cancelled", func() {
			srv := chatServer(t, http.StatusOK, "1", nil)
			defer srv.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := newTestClient(srv.URL).Complete(ctx, "notes")

			Convey("Then the cancellation should surface", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

type fakeCompleter struct {
	resp  string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.resp, f.err
}

func TestEmojiGenerator(t *testing.T) {
	Convey("Given an emoji generator", t, func() {
		fc := &fakeCompleter{resp: `["👨‍🍳","🍳","🥘","🔪","🍲","🧂"]`}
		g := NewEmojiGenerator(fc, 8)

		Convey("When asked twice for the same profession", func() {
			first, err := g.Emojis(context.Background(), "Chef")
			So(err, ShouldBeNil)
			second, err := g.Emojis(context.Background(), "  chef ")
			So(err, ShouldBeNil)

			Convey("Then the second answer should come from the cache", func() {
				So(fc.calls, ShouldEqual, 1)
				So(first, ShouldHaveLength, EmojiCount)
				So(second, ShouldResemble, first)
			})
		})

		Convey("When the profession is blank", func() {
			_, err := g.Emojis(context.Background(), " ")
			So(errors.Is(err, ErrMissingJobName), ShouldBeTrue)
			So(fc.calls, ShouldEqual, 0)
		})

		Convey("When the completion fails", func() {
			fc.err = errors.New("offline")
			_, err := g.Emojis(context.Background(), "pilot")

			Convey("Then the error should propagate and nothing is cached", func() {
				So(err, ShouldNotBeNil)
				fc.err = nil
				_, err = g.Emojis(context.Background(), "pilot")
				So(err, ShouldBeNil)
				So(fc.calls, ShouldEqual, 2)
			})
		})
	})
}

func TestParseEmojis(t *testing.T) {
	Convey("Given completion outputs", t, func() {
		out, err := ParseEmojis("```json\n[\"🌱\", \"🚜\"]\n```")
		So(err, ShouldBeNil)
		So(out, ShouldResemble, []string{"🌱", "🚜"})

		long, err := ParseEmojis(`["1️⃣","2️⃣","3️⃣","4️⃣","5️⃣","6️⃣","7️⃣"]`)
		So(err, ShouldBeNil)
		So(long, ShouldHaveLength, EmojiCount)
		So(long[EmojiCount-1], ShouldEqual, "5️⃣")

		for _, bad := range []string{"", "farmer", "[]", `["🌱", ""]`, `{"a":1}`} {
			_, err := ParseEmojis(bad)
			So(errors.Is(err, ErrInvalidEmojis), ShouldBeTrue)
		}
	})
}

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/fres-sudo/neuravia/internal/adapters/classifier"
	"github.com/fres-sudo/neuravia/internal/adapters/http/api"
	service "github.com/fres-sudo/neuravia/internal/app"
	"github.com/fres-sudo/neuravia/internal/domain/game"
	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/scoring"
	"github.com/fres-sudo/neuravia/internal/domain/types"
	"github.com/fres-sudo/neuravia/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// mockDeps is a scripted stand-in for the service.
type mockDeps struct {
	mu sync.Mutex

	latest    types.LatestScore
	history   []model.LedgerEntry
	filter    types.HistoryFilter
	mriImage  []byte
	mriName   string
	diary     model.WeeklyDiary
	ack       service.Ack
	acts      []game.Action
	dismissed int
	updates   chan game.Snapshot
	err       error
}

func (m *mockDeps) LatestScore(_ context.Context, patientID string) (types.LatestScore, error) {
	if m.err != nil {
		return types.LatestScore{}, m.err
	}
	l := m.latest
	l.PatientID = patientID
	return l, nil
}

func (m *mockDeps) History(_ context.Context, _ string, f types.HistoryFilter) ([]model.LedgerEntry, error) {
	m.filter = f
	return m.history, m.err
}

func (m *mockDeps) SubmitAssessment(_ context.Context, patientID string, a scoring.Assessment) (service.AssessmentResult, error) {
	if m.err != nil {
		return service.AssessmentResult{}, m.err
	}
	base := scoring.BaseAssessmentScore(a)
	return service.AssessmentResult{
		Entry:     model.LedgerEntry{PatientID: patientID, ActivityType: model.ActivityInitialAssessment, NewScore: base},
		BaseScore: base,
	}, nil
}

func (m *mockDeps) SubmitMRI(_ context.Context, patientID, filename string, image []byte) (service.MRIResult, error) {
	m.mriName, m.mriImage = filename, image
	if m.err != nil {
		return service.MRIResult{}, m.err
	}
	return service.MRIResult{Entry: model.LedgerEntry{PatientID: patientID, ActivityType: model.ActivityMRIUpload}}, nil
}

func (m *mockDeps) SubmitDiary(_ context.Context, patientID string, d model.WeeklyDiary) (model.LedgerEntry, error) {
	m.diary = d
	if err := d.Validate(); err != nil {
		return model.LedgerEntry{}, fmt.Errorf("%w: %w", service.ErrInvalidSubmission, err)
	}
	return model.LedgerEntry{PatientID: patientID, ActivityType: model.ActivityWeeklyForm}, nil
}

func (m *mockDeps) SubmitGame(_ context.Context, _ string, g service.GameResult) (service.Ack, error) {
	if m.err != nil {
		return service.Ack{}, m.err
	}
	ack := m.ack
	ack.SubmissionID = g.SessionID
	return ack, nil
}

func (m *mockDeps) StartSession(_ context.Context, req service.SessionRequest) (game.Snapshot, error) {
	if m.err != nil {
		return game.Snapshot{}, m.err
	}
	return game.Snapshot{SessionID: "s-1", PatientID: req.PatientID, State: game.StatePlaying, ShowInstructions: true}, nil
}

func (m *mockDeps) Session(_ context.Context, id string) (game.Snapshot, error) {
	if id != "s-1" {
		return game.Snapshot{}, fmt.Errorf("%w: %s", service.ErrSessionNotFound, id)
	}
	return game.Snapshot{SessionID: id, State: game.StatePlaying}, nil
}

func (m *mockDeps) Act(_ context.Context, id string, a game.Action) (bool, game.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acts = append(m.acts, a)
	return true, game.Snapshot{SessionID: id, State: game.StatePlaying}, nil
}

func (m *mockDeps) DismissInstructions(_ context.Context, id string) (bool, game.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dismissed++
	return m.dismissed == 1, game.Snapshot{SessionID: id, State: game.StatePlaying}, nil
}

func (m *mockDeps) UpdateSettings(_ context.Context, id string, t game.SettingsTable) (game.Snapshot, error) {
	if len(t) == 0 {
		return game.Snapshot{}, fmt.Errorf("%w: empty settings", service.ErrInvalidSubmission)
	}
	return game.Snapshot{SessionID: id, State: game.StatePlaying}, nil
}

func (m *mockDeps) EndSession(_ context.Context, id string) (game.Snapshot, error) {
	if _, err := m.Session(context.Background(), id); err != nil {
		return game.Snapshot{}, err
	}
	return game.Snapshot{SessionID: id, State: game.StateAborted}, nil
}

func (m *mockDeps) Subscribe(_ context.Context, id string) (<-chan game.Snapshot, func(), error) {
	if m.updates == nil {
		return nil, nil, fmt.Errorf("%w: %s", service.ErrSessionNotFound, id)
	}
	return m.updates, func() {}, nil
}

func (m *mockDeps) Emojis(_ context.Context, profession string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []string{"🍞", "🥐", "🧁", "🥖", "🎂"}, nil
}

func (m *mockDeps) actions() []game.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]game.Action(nil), m.acts...)
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func newMux(deps *mockDeps, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}}, opts...).
		Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

func TestServer_Health(t *testing.T) {
	Convey("Given a registered server", t, func() {
		mux := newMux(&mockDeps{})

		Convey("Then healthz and stats should answer", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)

			w = do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			decode(w, &stats)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Then a wrong method should be refused", func() {
			w := do(mux, http.MethodPost, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestScores(t *testing.T) {
	Convey("Given a patient with history", t, func() {
		deps := &mockDeps{
			latest:  types.LatestScore{Score: 72.5, HasScore: true},
			history: []model.LedgerEntry{{PatientID: "p-1", ActivityType: model.ActivityWeeklyForm, NewScore: 72.5}},
		}
		mux := newMux(deps, api.WithMaxHistoryLimit(50))

		Convey("When reading the latest score", func() {
			w := do(mux, http.MethodGet, "/patients/p-1/score", "")

			Convey("Then it should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var got types.LatestScore
				decode(w, &got)
				So(got.PatientID, ShouldEqual, "p-1")
				So(got.Score, ShouldEqual, 72.5)
				So(got.HasScore, ShouldBeTrue)
			})
		})

		Convey("When reading filtered history", func() {
			w := do(mux, http.MethodGet, "/patients/p-1/history?type=weekly_form&limit=5", "")

			Convey("Then the filter should reach the service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.filter.ActivityType, ShouldEqual, model.ActivityWeeklyForm)
				So(deps.filter.Limit, ShouldEqual, 5)
				So(w.Body.String(), ShouldContainSubstring, `"entries"`)
			})
		})

		Convey("When the query is malformed", func() {
			badType := do(mux, http.MethodGet, "/patients/p-1/history?type=chess", "")
			badLimit := do(mux, http.MethodGet, "/patients/p-1/history?limit=0", "")
			overLimit := do(mux, http.MethodGet, "/patients/p-1/history?limit=51", "")

			Convey("Then it should be a bad request", func() {
				So(badType.Code, ShouldEqual, http.StatusBadRequest)
				So(badLimit.Code, ShouldEqual, http.StatusBadRequest)
				So(overLimit.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When there is no history", func() {
			deps.history = nil
			w := do(mux, http.MethodGet, "/patients/p-2/history", "")

			Convey("Then entries should be an empty list", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"entries":[]`)
			})
		})
	})
}

func TestSubmissions(t *testing.T) {
	Convey("Given a registered server", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps, api.WithMaxUploadBytes(1024))

		Convey("When posting an assessment", func() {
			w := do(mux, http.MethodPost, "/patients/p-1/assessment", `{"diagnosis":"confirmed"}`)

			Convey("Then the entry should be created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				var res service.AssessmentResult
				decode(w, &res)
				So(res.Entry.PatientID, ShouldEqual, "p-1")
			})
		})

		Convey("When the body has unknown fields", func() {
			w := do(mux, http.MethodPost, "/patients/p-1/assessment", `{"diagnosis":"confirmed","age":80}`)

			Convey("Then it should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When posting a diary", func() {
			ok := do(mux, http.MethodPost, "/patients/p-1/diary",
				`{"memory":3,"orientation":3,"communication":4,"daily_activities":2,"mood_behaviour":5,"sleep":4,"social":3}`)
			bad := do(mux, http.MethodPost, "/patients/p-1/diary",
				`{"memory":0,"orientation":3,"communication":4,"daily_activities":2,"mood_behaviour":5,"sleep":4,"social":3}`)

			Convey("Then valid ratings should be recorded and invalid ones refused", func() {
				So(ok.Code, ShouldEqual, http.StatusCreated)
				So(bad.Code, ShouldEqual, http.StatusBadRequest)
				So(bad.Body.String(), ShouldContainSubstring, "memory")
			})
		})

		Convey("When posting a game result", func() {
			deps.ack = service.Ack{Status: "accepted", Value: 95}
			accepted := do(mux, http.MethodPost, "/patients/p-1/games",
				`{"session_id":"g-1","summary":{"games_completed_count":10,"session_duration_ms":60000}}`)
			deps.ack = service.Ack{Status: "duplicate", Duplicate: true}
			dup := do(mux, http.MethodPost, "/patients/p-1/games",
				`{"session_id":"g-1","summary":{"games_completed_count":10,"session_duration_ms":60000}}`)

			Convey("Then the first should be accepted and the repeat acknowledged", func() {
				So(accepted.Code, ShouldEqual, http.StatusAccepted)
				So(dup.Code, ShouldEqual, http.StatusOK)
				var ack service.Ack
				decode(dup, &ack)
				So(ack.SubmissionID, ShouldEqual, "g-1")
				So(ack.Duplicate, ShouldBeTrue)
			})
		})

		Convey("When the queue is full", func() {
			deps.err = fmt.Errorf("%w: queue full", service.ErrBackpressure)
			w := do(mux, http.MethodPost, "/patients/p-1/games", `{"session_id":"g-2","summary":{}}`)

			Convey("Then it should ask the client to back off", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			})
		})
	})
}

func multipartBody(field, filename string, content []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile(field, filename)
	_, _ = fw.Write(content)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestSubmissions_MRI(t *testing.T) {
	Convey("Given a server accepting small uploads", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps, api.WithMaxUploadBytes(4096))

		post := func(field string, content []byte) *httptest.ResponseRecorder {
			body, ct := multipartBody(field, "scan.png", content)
			req := httptest.NewRequest(http.MethodPost, "/patients/p-1/mri", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			return w
		}

		Convey("When a scan is uploaded", func() {
			w := post("file", []byte("png-bytes"))

			Convey("Then the image should reach the classifier", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.mriName, ShouldEqual, "scan.png")
				So(string(deps.mriImage), ShouldEqual, "png-bytes")
			})
		})

		Convey("When the field is missing", func() {
			w := post("image", []byte("png-bytes"))

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the upload is too large", func() {
			w := post("file", bytes.Repeat([]byte{1}, 8192))

			Convey("Then it should be refused", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
			})
		})

		Convey("When the classifier fails", func() {
			deps.err = fmt.Errorf("%w: upstream 500", classifier.ErrClassification)
			w := post("file", []byte("png-bytes"))

			Convey("Then it should surface as a gateway error", func() {
				So(w.Code, ShouldEqual, http.StatusBadGateway)
			})
		})

		Convey("When no classifier is configured", func() {
			deps.err = service.ErrClassifierDisabled
			w := post("file", []byte("png-bytes"))

			Convey("Then the endpoint should be unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}

func TestSessions(t *testing.T) {
	Convey("Given a registered server", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When starting a session", func() {
			w := do(mux, http.MethodPost, "/sessions",
				`{"patient_id":"p-1","mode":"short","profile":{"profession":"baker","difficulty":"mild"}}`)

			Convey("Then the first view should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				var snap game.Snapshot
				decode(w, &snap)
				So(snap.SessionID, ShouldEqual, "s-1")
				So(snap.ShowInstructions, ShouldBeTrue)
			})
		})

		Convey("When the session cap is reached", func() {
			deps.err = service.ErrTooManySessions
			w := do(mux, http.MethodPost, "/sessions", `{"patient_id":"p-1","mode":"short"}`)

			Convey("Then it should be too many requests", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			})
		})

		Convey("When acting on a session", func() {
			w := do(mux, http.MethodPost, "/sessions/s-1/actions", `{"target":2}`)

			Convey("Then the action should be applied", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"applied":true`)
				So(deps.actions(), ShouldResemble, []game.Action{{Target: 2}})
			})
		})

		Convey("When dismissing instructions twice", func() {
			first := do(mux, http.MethodPost, "/sessions/s-1/instructions/dismiss", "")
			second := do(mux, http.MethodPost, "/sessions/s-1/instructions/dismiss", "")

			Convey("Then only the first should apply", func() {
				So(first.Body.String(), ShouldContainSubstring, `"applied":true`)
				So(second.Body.String(), ShouldContainSubstring, `"applied":false`)
			})
		})

		Convey("When updating settings", func() {
			ok := do(mux, http.MethodPut, "/sessions/s-1/settings", `{"settings":{"mild":{"timer_duration":5,"item_count":4}}}`)
			empty := do(mux, http.MethodPut, "/sessions/s-1/settings", `{"settings":{}}`)

			Convey("Then an empty table should be refused", func() {
				So(ok.Code, ShouldEqual, http.StatusOK)
				So(empty.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When ending a session", func() {
			w := do(mux, http.MethodDelete, "/sessions/s-1", "")
			missing := do(mux, http.MethodDelete, "/sessions/nope", "")

			Convey("Then it should be aborted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var snap game.Snapshot
				decode(w, &snap)
				So(snap.State, ShouldEqual, game.StateAborted)
				So(missing.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestSessions_Stream(t *testing.T) {
	Convey("Given a websocket client on a live session", t, func() {
		deps := &mockDeps{updates: make(chan game.Snapshot, 4)}
		srv := httptest.NewServer(newMux(deps))
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/s-1/stream"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		Convey("When the session view changes and then ends", func() {
			deps.updates <- game.Snapshot{SessionID: "s-1", State: game.StatePlaying, CurrentRound: 1}
			deps.updates <- game.Snapshot{SessionID: "s-1", State: game.StateCompleted, CurrentRound: 12}
			close(deps.updates)

			Convey("Then both views should arrive before a normal close", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				var first, second game.Snapshot
				So(conn.ReadJSON(&first), ShouldBeNil)
				So(conn.ReadJSON(&second), ShouldBeNil)
				So(first.CurrentRound, ShouldEqual, 1)
				So(second.State, ShouldEqual, game.StateCompleted)

				_, _, err := conn.ReadMessage()
				So(websocket.IsCloseError(err, websocket.CloseNormalClosure), ShouldBeTrue)
			})
		})

		Convey("When the client sends an act frame", func() {
			So(conn.WriteJSON(map[string]any{"type": "act", "target": 3}), ShouldBeNil)

			Convey("Then the action should reach the session", func() {
				deadline := time.Now().Add(2 * time.Second)
				for len(deps.actions()) == 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(deps.actions(), ShouldResemble, []game.Action{{Target: 3}})
			})
		})
	})

	Convey("Given a session that does not exist", t, func() {
		mux := newMux(&mockDeps{})

		Convey("Then the stream should be not found before upgrading", func() {
			w := do(mux, http.MethodGet, "/sessions/nope/stream", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestEmojis(t *testing.T) {
	Convey("Given a registered server", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("Then a profession should yield emojis", func() {
			w := do(mux, http.MethodGet, "/emojis?profession=baker", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var res struct {
				Emojis []string `json:"emojis"`
			}
			decode(w, &res)
			So(res.Emojis, ShouldHaveLength, 5)
		})

		Convey("Then a missing profession should be a bad request", func() {
			w := do(mux, http.MethodGet, "/emojis", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then a disabled completion client should be unavailable", func() {
			deps.err = service.ErrCompletionDisabled
			w := do(mux, http.MethodGet, "/emojis?profession=baker", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

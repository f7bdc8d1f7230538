package simulate

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fres-sudo/neuravia/internal/adapters/http/api"
	service "github.com/fres-sudo/neuravia/internal/app"
	"github.com/fres-sudo/neuravia/internal/domain/game"
	"github.com/fres-sudo/neuravia/internal/domain/scoring"
	"github.com/fres-sudo/neuravia/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestGenerateSummary(t *testing.T) {
	Convey("Given generated summaries", t, func() {
		for i := 0; i < 200; i++ {
			s := generateSummary()

			So(s.GamesCompletedCount, ShouldBeBetweenOrEqual, 0, scoring.TotalGameTypes)
			So(s.PerGameAverageScores, ShouldHaveLength, s.GamesCompletedCount)
			So(s.AverageScorePerGame, ShouldBeBetweenOrEqual, scoring.MinScore, scoring.MaxScore)
			So(s.SessionDurationMs, ShouldBeBetweenOrEqual, fastSessionMs, slowSessionMs)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	Convey("Given simulation configs", t, func() {
		valid := Config{BaseURL: "http://x", Patients: 2, GamesPerPatient: 3, HostedSessions: 1, Workers: 1}
		So(valid.Validate(), ShouldBeNil)

		cases := []struct {
			name   string
			mutate func(c *Config)
		}{
			{"no url", func(c *Config) { c.BaseURL = "" }},
			{"no patients", func(c *Config) { c.Patients = 0 }},
			{"no workers", func(c *Config) { c.Workers = 0 }},
			{"resend", func(c *Config) { c.ResendRatio = 1.5 }},
			{"over history", func(c *Config) { c.GamesPerPatient = historyLimit }},
		}
		for _, tc := range cases {
			c := valid
			tc.mutate(&c)
			Convey("Then "+tc.name+" should be rejected", func() {
				So(errors.Is(c.Validate(), ErrInvalidConfig), ShouldBeTrue)
			})
		}
	})
}

func TestNextMove(t *testing.T) {
	Convey("Given session views", t, func() {
		Convey("Then instructions should be dismissed first", func() {
			f, key, ok := nextMove(Snapshot{State: "playing", ShowInstructions: true}, "")
			So(ok, ShouldBeTrue)
			So(f.Type, ShouldEqual, frameDismiss)
			So(key, ShouldBeEmpty)
		})

		Convey("Then a respond phase should be answered once", func() {
			view := Snapshot{State: "playing", Round: &RoundView{Game: "hawk-eye", Round: 2, Phase: phaseRespond, Markers: []any{1, 2, 3}}}
			f, key, ok := nextMove(view, "")
			So(ok, ShouldBeTrue)
			So(f.Type, ShouldEqual, frameAct)
			So(f.Target, ShouldBeBetweenOrEqual, 0, 2)

			_, _, again := nextMove(view, key)
			So(again, ShouldBeFalse)
		})

		Convey("Then other phases should wait", func() {
			_, _, ok := nextMove(Snapshot{State: "playing", Round: &RoundView{Phase: "memorize"}}, "")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestCheckPatient(t *testing.T) {
	Convey("Given an expectation for three sessions", t, func() {
		exp := &expectation{games: map[string]float64{"a": 50, "b": 60, "h": math.NaN()}}
		entry := func(id string, v float64) LedgerEntry {
			return LedgerEntry{ID: id, ActivityValue: v, Metadata: map[string]any{"session_id": id}}
		}

		Convey("Then a complete history should match", func() {
			c := checkPatient(exp, []LedgerEntry{entry("a", 50), entry("b", 60), entry("h", 12), entry("other", 1)})
			So(c, ShouldResemble, patientCheck{matched: 3})
		})

		Convey("Then gaps, wrong values and repeats should be counted", func() {
			c := checkPatient(exp, []LedgerEntry{entry("a", 51), entry("h", 3), entry("h", 3)})
			So(c, ShouldResemble, patientCheck{matched: 1, missing: 1, mismatched: 1, duplicated: 1})
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		quick := game.Settings{TimerDuration: 1, ItemCount: 2}
		svc := service.New(
			service.WithLogger(logger.Nop()),
			service.WithSettings(game.SettingsTable{
				game.DifficultyMild:     quick,
				game.DifficultyModerate: quick,
				game.DifficultySevere:   quick,
			}),
			service.WithResponseTimeout(1),
			service.WithTickInterval(2*time.Millisecond),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc, api.WithLogger(logger.Nop())).Register(context.Background(), mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When the simulator reports games and plays a hosted session", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			cfg := &Config{
				BaseURL:         srv.URL,
				Patients:        2,
				GamesPerPatient: 3,
				HostedSessions:  1,
				Mode:            "short",
				Difficulty:      "mild",
				Workers:         2,
				Timeout:         5 * time.Second,
				SettleTimeout:   10 * time.Second,
				ResendRatio:     0.5,
				OutputFile:      filepath.Join(t.TempDir(), "report.json"),
			}
			err := Run(ctx, cfg)

			Convey("Then every session should land in the ledger once", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats()["ledgerEntries"], ShouldEqual, 7)
			})
		})
	})
}

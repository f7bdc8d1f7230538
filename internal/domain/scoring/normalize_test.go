package scoring_test

import (
	"context"
	"errors"
	"math"
	"testing"

	scoring "github.com/fres-sudo/neuravia/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalizeMRIUpload(t *testing.T) {
	Convey("Given MRI probability vectors", t, func() {
		Convey("When the prediction leans healthy", func() {
			got := scoring.NormalizeMRIUpload([]float64{0.7, 0.2, 0.1, 0.0})

			Convey("Then the weighted sum should be 88", func() {
				So(got, ShouldAlmostEqual, 88, 1e-9)
			})
		})

		Convey("When the prediction is certain", func() {
			So(scoring.NormalizeMRIUpload([]float64{1, 0, 0, 0}), ShouldAlmostEqual, 100)
			So(scoring.NormalizeMRIUpload([]float64{0, 0, 0, 1}), ShouldAlmostEqual, 10)
		})

		Convey("When the vector is short, long or malformed", func() {
			So(scoring.NormalizeMRIUpload(nil), ShouldAlmostEqual, 0)
			So(scoring.NormalizeMRIUpload([]float64{0.5}), ShouldAlmostEqual, 50)
			So(scoring.NormalizeMRIUpload([]float64{0, 0, 0, 0, 1}), ShouldAlmostEqual, 0)
			So(scoring.NormalizeMRIUpload([]float64{math.NaN(), 1}), ShouldAlmostEqual, 70)
			So(scoring.NormalizeMRIUpload([]float64{3, 0, 0, 0}), ShouldAlmostEqual, 100)
		})
	})
}

func TestNormalizeWeeklyForm(t *testing.T) {
	Convey("Given weekly form ratings", t, func() {
		Convey("When every rating is 5", func() {
			So(scoring.NormalizeWeeklyForm([]int{5, 5, 5, 5, 5, 5, 5}), ShouldAlmostEqual, 100)
		})

		Convey("When every rating is 1", func() {
			So(scoring.NormalizeWeeklyForm([]int{1, 1, 1, 1, 1, 1, 1}), ShouldAlmostEqual, 0)
		})

		Convey("When ratings are mixed", func() {
			So(scoring.NormalizeWeeklyForm([]int{3, 3, 3}), ShouldAlmostEqual, 50)
			So(scoring.NormalizeWeeklyForm([]int{2, 4}), ShouldAlmostEqual, 50)
		})

		Convey("When the form is empty or out of range", func() {
			So(scoring.NormalizeWeeklyForm(nil), ShouldAlmostEqual, 0)
			So(scoring.NormalizeWeeklyForm([]int{9, 9}), ShouldAlmostEqual, 100)
			So(scoring.NormalizeWeeklyForm([]int{0}), ShouldAlmostEqual, 0)
		})
	})
}

func TestNormalizeGamePlayed(t *testing.T) {
	Convey("Given game session summaries", t, func() {
		Convey("When every game is completed with identical scores", func() {
			got := scoring.NormalizeGamePlayed(scoring.GameSummary{
				AverageScorePerGame:  60,
				GamesCompletedCount:  4,
				PerGameAverageScores: []float64{60, 60, 60, 60},
				SessionDurationMs:    120_000,
			})

			Convey("Then both bonuses should apply in full", func() {
				So(got, ShouldAlmostEqual, 85)
			})
		})

		Convey("When scores vary across games", func() {
			s := scoring.GameSummary{
				AverageScorePerGame:  50,
				GamesCompletedCount:  4,
				PerGameAverageScores: []float64{48, 52, 48, 52},
			}

			Convey("Then the consistency bonus should shrink by the variance", func() {
				So(s.Variance(), ShouldAlmostEqual, 4)
				So(scoring.NormalizeGamePlayed(s), ShouldAlmostEqual, 50+10+11)
			})
		})

		Convey("When the variance exceeds the bonus cap", func() {
			got := scoring.NormalizeGamePlayed(scoring.GameSummary{
				AverageScorePerGame:  50,
				GamesCompletedCount:  2,
				PerGameAverageScores: []float64{0, 100},
			})

			Convey("Then no consistency bonus should be added", func() {
				So(got, ShouldAlmostEqual, 50)
			})
		})

		Convey("When the session runs past five minutes", func() {
			got := scoring.NormalizeGamePlayed(scoring.GameSummary{
				AverageScorePerGame:  40,
				GamesCompletedCount:  1,
				PerGameAverageScores: []float64{40},
				SessionDurationMs:    300_000 + 3*60_000,
			})

			Convey("Then one point per extra minute should be lost", func() {
				So(got, ShouldAlmostEqual, 40+15-3)
			})
		})

		Convey("When the total overflows or underflows", func() {
			So(scoring.NormalizeGamePlayed(scoring.GameSummary{AverageScorePerGame: 100, GamesCompletedCount: 4}), ShouldAlmostEqual, 100)
			So(scoring.NormalizeGamePlayed(scoring.GameSummary{SessionDurationMs: 3_600_000}), ShouldAlmostEqual, 0)
		})
	})
}

type stubCompleter struct {
	resp  string
	err   error
	calls int
}

func (s *stubCompleter) Complete(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.resp, s.err
}

func TestNormalizeInitialAssessment(t *testing.T) {
	Convey("Given initial assessments", t, func() {
		ctx := context.Background()

		Convey("When confirmed and severe with empty notes", func() {
			stub := &stubCompleter{resp: "5"}
			got, adj := scoring.NormalizeInitialAssessment(ctx, scoring.Assessment{
				Diagnosis: scoring.DiagnosisConfirmed,
				Stage:     scoring.StageSevere,
			}, scoring.NewCompletionAdjuster(stub))

			Convey("Then the base score should be used without calling out", func() {
				So(got, ShouldAlmostEqual, 15)
				So(adj.Ok(), ShouldBeFalse)
				So(stub.calls, ShouldEqual, 0)
			})
		})

		Convey("When there is no diagnosis the stage should be ignored", func() {
			got, _ := scoring.NormalizeInitialAssessment(ctx, scoring.Assessment{
				Diagnosis: scoring.DiagnosisNone,
				Stage:     scoring.StageSevere,
			}, nil)
			So(got, ShouldAlmostEqual, 85)
		})

		Convey("When a suspected moderate case has notes and a valid response", func() {
			stub := &stubCompleter{resp: " -4.\n"}
			got, adj := scoring.NormalizeInitialAssessment(ctx, scoring.Assessment{
				Diagnosis: scoring.DiagnosisSuspected,
				Stage:     scoring.StageModerate,
				Notes:     "forgets appointments more often",
			}, scoring.NewCompletionAdjuster(stub))

			Convey("Then the adjustment should be applied", func() {
				So(stub.calls, ShouldEqual, 1)
				So(adj.Ok(), ShouldBeTrue)
				So(adj.Value, ShouldEqual, -4)
				So(got, ShouldAlmostEqual, 65-15-4)
			})
		})

		Convey("When the completion call fails", func() {
			stub := &stubCompleter{err: errors.New("upstream 503")}
			got, adj := scoring.NormalizeInitialAssessment(ctx, scoring.Assessment{
				Diagnosis: scoring.DiagnosisConfirmed,
				Stage:     scoring.StageMild,
				Notes:     "stable week",
			}, scoring.NewCompletionAdjuster(stub))

			Convey("Then the base score should be kept", func() {
				So(got, ShouldAlmostEqual, 45)
				So(adj.Ok(), ShouldBeFalse)
				So(adj.Reason, ShouldContainSubstring, "upstream 503")
			})
		})

		Convey("When the response is malformed or out of bounds", func() {
			for _, resp := range []string{"", "maybe", "11", "-30", "between 2 and 3", "4 or 5"} {
				stub := &stubCompleter{resp: resp}
				got, adj := scoring.NormalizeInitialAssessment(ctx, scoring.Assessment{
					Diagnosis: scoring.DiagnosisNone,
					Notes:     "note",
				}, scoring.NewCompletionAdjuster(stub))
				So(got, ShouldAlmostEqual, 85)
				So(adj.Ok(), ShouldBeFalse)
			}
		})

		Convey("When the adjustment would leave the range", func() {
			stub := &stubCompleter{resp: "+10"}
			got, _ := scoring.NormalizeInitialAssessment(ctx, scoring.Assessment{
				Diagnosis: scoring.DiagnosisNone,
				Notes:     "great week",
			}, scoring.NewCompletionAdjuster(stub))

			Convey("Then the result should be clamped", func() {
				So(got, ShouldAlmostEqual, 95)
			})
		})
	})
}

func TestParseAdjustment(t *testing.T) {
	Convey("Given completion responses", t, func() {
		cases := map[string]int{
			"3":              3,
			"-10":            -10,
			"+7":             7,
			"Adjustment: -2": -2,
			"`0`":            0,
		}
		for resp, want := range cases {
			adj := scoring.ParseAdjustment(resp)
			So(adj.Ok(), ShouldBeTrue)
			So(adj.Value, ShouldEqual, want)
		}
		So(scoring.ParseAdjustment("ten").Kind.String(), ShouldEqual, "fallback")
	})
}

func TestAssessment_Normalize(t *testing.T) {
	Convey("Given assessments as typed by caregivers", t, func() {
		Convey("When values differ only in case and spacing", func() {
			a, err := scoring.Assessment{Diagnosis: "Confirmed ", Stage: "SEVERE"}.Normalize()

			Convey("Then they should map onto the known values", func() {
				So(err, ShouldBeNil)
				So(a.Diagnosis, ShouldEqual, scoring.DiagnosisConfirmed)
				So(a.Stage, ShouldEqual, scoring.StageSevere)
				So(scoring.BaseAssessmentScore(a), ShouldEqual, 15)
			})
		})

		Convey("When there is no diagnosis", func() {
			a, err := scoring.Assessment{Diagnosis: "None", Stage: "whatever"}.Normalize()

			Convey("Then the stage should be dropped", func() {
				So(err, ShouldBeNil)
				So(a.Stage, ShouldEqual, scoring.Stage(""))
				So(scoring.BaseAssessmentScore(a), ShouldEqual, 85)
			})
		})

		Convey("When values are unknown", func() {
			_, diagErr := scoring.Assessment{Diagnosis: "bogus"}.Normalize()
			_, stageErr := scoring.Assessment{Diagnosis: "suspected", Stage: "early"}.Normalize()

			Convey("Then the matching error kind should be returned", func() {
				So(errors.Is(diagErr, scoring.ErrUnknownDiagnosis), ShouldBeTrue)
				So(errors.Is(stageErr, scoring.ErrUnknownStage), ShouldBeTrue)
			})
		})
	})
}

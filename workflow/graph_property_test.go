package workflow

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// A veto loop bounded by a retry cap always terminates at the finish node and
// revisits the planner at most cap+1 times, whatever the number of vetoes.
func TestProperty_BoundedRetryLoopTerminates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("bounded veto loop terminates", prop.ForAll(
		func(vetoes, retryCap int) bool {
			g, err := NewBuilder[loopState]("prop").
				AddNode("plan", "plan", func(_ context.Context, s *loopState) error {
					if len(s.trail) > 0 {
						s.retries++
					}
					s.trail = append(s.trail, "plan")
					return nil
				}).
				AddNode("finish", "finish", appendNode("finish")).
				AddConditionalEdge("plan", func(s *loopState) string {
					if s.vetoes > s.retries && s.retries < s.cap {
						return "plan"
					}
					return "finish"
				}, "plan", "finish").
				AddEdge("finish", End).
				SetEntry("plan").
				SetMaxSteps(64).
				Build(zap.NewNop())
			if err != nil {
				return false
			}

			s := &loopState{vetoes: vetoes, cap: retryCap}
			report, err := g.Run(context.Background(), s)
			if err != nil {
				return false
			}
			want := vetoes
			if retryCap < want {
				want = retryCap
			}
			return report.Visits["plan"] == want+1 &&
				report.Visits["finish"] == 1 &&
				s.trail[len(s.trail)-1] == "finish"
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

package game

// HawkEye random walk parameters.
const (
	hawkMoveSteps    = 8
	hawkStepsPerTick = 2
	hawkStepSize     = 12
	hawkMinItems     = 2
)

// hawkEye highlights one marker, shuffles every marker around with the
// highlight removed, then asks which one was the target.
type hawkEye struct {
	base
	markers []Point
	target  int
	steps   int
}

func newHawkEye(cfg roundConfig) *hawkEye {
	return &hawkEye{base: newBase(HawkEye, cfg), target: -1}
}

func (g *hawkEye) Reset(number int, s Settings) {
	if !g.reset(number, s) {
		return
	}
	n := min(max(s.ItemCount, hawkMinItems), layoutCols*layoutRows)
	g.markers = g.markers[:0]
	for _, c := range scatter(g.cfg.rng, n) {
		g.markers = append(g.markers, cellPoint(c))
	}
	g.target = g.cfg.rng.Intn(n)
	g.steps = 0
	g.begin(s.TimerDuration)
}

func (g *hawkEye) Tick() {
	if g.phase == PhaseMoving {
		for i := 0; i < hawkStepsPerTick && g.steps < hawkMoveSteps; i++ {
			g.step()
		}
	}
	if !g.tick() {
		return
	}
	switch g.phase {
	case PhaseMemorize:
		g.enter(PhaseMoving, (hawkMoveSteps+hawkStepsPerTick-1)/hawkStepsPerTick)
	case PhaseMoving:
		g.respond()
	}
}

// step moves every marker once in a random direction.
func (g *hawkEye) step() {
	for i := range g.markers {
		g.markers[i].X = clampPercent(g.markers[i].X + g.cfg.rng.Intn(2*hawkStepSize+1) - hawkStepSize)
		g.markers[i].Y = clampPercent(g.markers[i].Y + g.cfg.rng.Intn(2*hawkStepSize+1) - hawkStepSize)
	}
	g.steps++
}

func (g *hawkEye) Act(a Action) bool {
	if !g.accepting() || a.Target < 0 || a.Target >= len(g.markers) {
		return false
	}
	g.resolve(a.Target == g.target, map[string]any{
		"clicked": a.Target,
		"target":  g.target,
		"items":   len(g.markers),
		"steps":   g.steps,
	})
	return true
}

func (g *hawkEye) View() View {
	v := g.view()
	if g.phase == PhaseLoading {
		return v
	}
	v.Markers = append([]Point(nil), g.markers...)
	if g.phase == PhaseMemorize || g.phase == PhaseResult {
		t := g.target
		v.Highlight = &t
	}
	v.Progress = g.steps
	return v
}

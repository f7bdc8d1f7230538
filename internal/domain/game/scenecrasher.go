package game

// SceneCrasher timing and layout.
const (
	sceneMemorizeTicks = 5
	sceneHiddenTicks   = 1
	sceneMinItems      = 2
)

// sceneCrasher shows N markers, blacks out, then reveals them again with one
// extra marker. The player must click the new one.
type sceneCrasher struct {
	base
	cells    []int
	markers  []Point
	newIndex int
}

func newSceneCrasher(cfg roundConfig) *sceneCrasher {
	return &sceneCrasher{base: newBase(SceneCrasher, cfg), newIndex: -1}
}

func (g *sceneCrasher) Reset(number int, s Settings) {
	if !g.reset(number, s) {
		return
	}
	n := min(max(s.ItemCount, sceneMinItems), layoutCols*layoutRows-1)
	g.cells = scatter(g.cfg.rng, n+1)
	g.markers = make([]Point, 0, n+1)
	for _, c := range g.cells[:n] {
		g.markers = append(g.markers, cellPoint(c))
	}
	g.newIndex = -1
	g.begin(sceneMemorizeTicks)
}

func (g *sceneCrasher) Tick() {
	if !g.tick() {
		return
	}
	switch g.phase {
	case PhaseMemorize:
		g.enter(PhaseHidden, sceneHiddenTicks)
	case PhaseHidden:
		g.reveal()
		g.respond()
	}
}

// reveal inserts the extra marker at a random index.
func (g *sceneCrasher) reveal() {
	n := len(g.markers)
	extra := cellPoint(g.cells[n])
	g.newIndex = g.cfg.rng.Intn(n + 1)
	g.markers = append(g.markers, Point{})
	copy(g.markers[g.newIndex+1:], g.markers[g.newIndex:])
	g.markers[g.newIndex] = extra
}

func (g *sceneCrasher) Act(a Action) bool {
	if !g.accepting() || a.Target < 0 || a.Target >= len(g.markers) {
		return false
	}
	g.resolve(a.Target == g.newIndex, map[string]any{
		"clicked":   a.Target,
		"new_index": g.newIndex,
		"items":     len(g.markers) - 1,
	})
	return true
}

func (g *sceneCrasher) View() View {
	v := g.view()
	if g.phase != PhaseHidden && g.phase != PhaseLoading {
		v.Markers = append([]Point(nil), g.markers...)
	}
	return v
}

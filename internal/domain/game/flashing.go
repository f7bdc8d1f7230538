package game

// GridCells is the size of the FlashingMemory 3x3 grid.
const GridCells = 9

// flashingMemory flashes numbers 1..N on a 3x3 grid. The player clicks the
// cells in ascending order; the first wrong click ends the round.
type flashingMemory struct {
	base
	grid [GridCells]int // 0 means empty
	next int
}

func newFlashingMemory(cfg roundConfig) *flashingMemory {
	return &flashingMemory{base: newBase(FlashingMemory, cfg)}
}

func (g *flashingMemory) Reset(number int, s Settings) {
	if !g.reset(number, s) {
		return
	}
	n := min(s.ItemCount, GridCells)
	g.grid = [GridCells]int{}
	for i, cell := range g.cfg.rng.Perm(GridCells)[:n] {
		g.grid[cell] = i + 1
	}
	g.next = 1
	g.begin(s.TimerDuration)
}

func (g *flashingMemory) items() int {
	n := 0
	for _, v := range g.grid {
		if v > 0 {
			n++
		}
	}
	return n
}

func (g *flashingMemory) Tick() {
	if g.tick() && g.phase == PhaseMemorize {
		g.respond()
	}
}

func (g *flashingMemory) Act(a Action) bool {
	if !g.accepting() || a.Target < 0 || a.Target >= GridCells {
		return false
	}
	if g.grid[a.Target] != g.next {
		g.resolve(false, map[string]any{
			"clicked":  a.Target,
			"expected": g.next,
			"items":    g.items(),
		})
		return true
	}
	g.next++
	if g.next > g.items() {
		g.resolve(true, map[string]any{"items": g.items()})
	}
	return true
}

func (g *flashingMemory) View() View {
	v := g.view()
	if g.phase == PhaseLoading {
		return v
	}
	v.Grid = make([]int, GridCells)
	for i, n := range g.grid {
		// Numbers are visible while memorising, once found, and on the result screen.
		if g.phase == PhaseMemorize || g.phase == PhaseResult || (n > 0 && n < g.next) {
			v.Grid[i] = n
		}
	}
	v.Progress = g.next - 1
	return v
}

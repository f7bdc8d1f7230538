package game

const todoMinItems = 2

// defaultTasks is used when the profile carries no TodoList assets.
var defaultTasks = []string{
	"Water the plants",
	"Buy bread",
	"Call the pharmacy",
	"Take the medicine",
	"Feed the cat",
	"Post the letter",
	"Set the table",
	"Fold the laundry",
}

// todoList shows an ordered list of tasks, then the same tasks shuffled. The
// player clicks them back in the original order; only the full sequence is
// judged.
type todoList struct {
	base
	tasks    []Task
	shuffled []Task
	clicks   []int
}

func newTodoList(cfg roundConfig) *todoList {
	return &todoList{base: newBase(TodoList, cfg)}
}

func (g *todoList) Reset(number int, s Settings) {
	if !g.reset(number, s) {
		return
	}
	pool := g.cfg.assets.Items
	if len(pool) < todoMinItems {
		pool = defaultTasks
	}
	n := min(max(s.ItemCount, todoMinItems), len(pool))

	g.tasks = make([]Task, n)
	for i, p := range g.cfg.rng.Perm(len(pool))[:n] {
		g.tasks[i] = Task{ID: i, Label: pool[p]}
	}
	g.shuffled = append(g.shuffled[:0], g.tasks...)
	g.cfg.rng.Shuffle(n, func(i, j int) {
		g.shuffled[i], g.shuffled[j] = g.shuffled[j], g.shuffled[i]
	})
	g.clicks = g.clicks[:0]
	g.begin(s.TimerDuration)
}

func (g *todoList) Tick() {
	if g.tick() && g.phase == PhaseMemorize {
		g.respond()
	}
}

func (g *todoList) Act(a Action) bool {
	if !g.accepting() || a.Target < 0 || a.Target >= len(g.tasks) {
		return false
	}
	for _, c := range g.clicks {
		if c == a.Target {
			return false
		}
	}
	g.clicks = append(g.clicks, a.Target)
	if len(g.clicks) < len(g.tasks) {
		return true
	}

	inOrder := true
	for i, c := range g.clicks {
		if c != i {
			inOrder = false
			break
		}
	}
	g.resolve(inOrder, map[string]any{
		"clicks": append([]int(nil), g.clicks...),
		"items":  len(g.tasks),
	})
	return true
}

func (g *todoList) View() View {
	v := g.view()
	switch g.phase {
	case PhaseMemorize:
		v.Tasks = append([]Task(nil), g.tasks...)
	case PhaseRespond, PhaseResult:
		v.Tasks = append([]Task(nil), g.shuffled...)
	}
	v.Progress = len(g.clicks)
	return v
}

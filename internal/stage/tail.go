package stage

import "sync"

// DefaultTailLines bounds captured subprocess output when unset.
const DefaultTailLines = 20

// Tail keeps the most recent lines written to it.
type Tail struct {
	mu    sync.Mutex
	max   int
	lines []string
	start int
}

// NewTail returns a Tail retaining up to max lines.
func NewTail(max int) *Tail {
	if max <= 0 {
		max = DefaultTailLines
	}
	return &Tail{max: max}
}

// Add appends a line, evicting the oldest when full.
func (t *Tail) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) < t.max {
		t.lines = append(t.lines, line)
		return
	}
	t.lines[t.start] = line
	t.start = (t.start + 1) % t.max
}

// Lines returns the retained lines oldest first.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.lines))
	out = append(out, t.lines[t.start:]...)
	out = append(out, t.lines[:t.start]...)
	return out
}

// Reset discards all lines.
func (t *Tail) Reset() {
	t.mu.Lock()
	t.lines = t.lines[:0]
	t.start = 0
	t.mu.Unlock()
}

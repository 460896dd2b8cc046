package tracker

// IdleWindow is a bounded FIFO of idle/moving classifications that keeps a
// running count of its idle entries.
type IdleWindow struct {
	buf   []bool
	start int
	size  int
	idle  int
}

// NewIdleWindow returns an empty window holding at most capacity entries.
func NewIdleWindow(capacity int) *IdleWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdleWindow{buf: make([]bool, capacity)}
}

// Push appends a classification, evicting the oldest one when full.
func (w *IdleWindow) Push(idle bool) {
	if w.size == len(w.buf) {
		if w.buf[w.start] {
			w.idle--
		}
		w.buf[w.start] = idle
		w.start = (w.start + 1) % len(w.buf)
	} else {
		w.buf[(w.start+w.size)%len(w.buf)] = idle
		w.size++
	}
	if idle {
		w.idle++
	}
}

// Reset empties the window.
func (w *IdleWindow) Reset() {
	w.start, w.size, w.idle = 0, 0, 0
}

func (w *IdleWindow) Len() int  { return w.size }
func (w *IdleWindow) Cap() int  { return len(w.buf) }
func (w *IdleWindow) Idle() int { return w.idle }

// Values returns the classifications oldest-first.
func (w *IdleWindow) Values() []bool {
	out := make([]bool, w.size)
	for i := range out {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

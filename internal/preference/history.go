package preference

// history is a fixed-capacity ring of smoothed values. When full, pushing
// overwrites the oldest value. It is not safe for concurrent use.
type history[T any] struct {
	buf  []T
	head int
	size int
}

func newHistory[T any](capacity int) *history[T] {
	if capacity <= 0 {
		panic("history capacity must be positive")
	}
	return &history[T]{buf: make([]T, capacity)}
}

func (h *history[T]) push(v T) {
	tail := (h.head + h.size) % len(h.buf)
	h.buf[tail] = v
	if h.size < len(h.buf) {
		h.size++
		return
	}
	h.head = (h.head + 1) % len(h.buf)
}

func (h *history[T]) len() int { return h.size }

func (h *history[T]) first() (T, bool) {
	var zero T
	if h.size == 0 {
		return zero, false
	}
	return h.buf[h.head], true
}

func (h *history[T]) last() (T, bool) {
	var zero T
	if h.size == 0 {
		return zero, false
	}
	return h.buf[(h.head+h.size-1)%len(h.buf)], true
}

// values returns the held values oldest first.
func (h *history[T]) values() []T {
	out := make([]T, h.size)
	for i := range h.size {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

func (h *history[T]) clear() {
	clear(h.buf)
	h.head = 0
	h.size = 0
}

package resampler

// Window is a bounded, insertion-ordered rolling sequence. The oldest
// entry is evicted when a push exceeds capacity. Each window is owned by
// exactly one resampler instance and is not safe for concurrent use.
type Window[T any] struct {
	buf  []T
	head int
	size int
}

// NewWindow creates a window holding at most capacity entries.
func NewWindow[T any](capacity int) *Window[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry when full.
func (w *Window[T]) Push(v T) {
	if w.size < len(w.buf) {
		w.buf[(w.head+w.size)%len(w.buf)] = v
		w.size++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// Len returns the number of stored entries.
func (w *Window[T]) Len() int {
	return w.size
}

// Cap returns the maximum number of entries.
func (w *Window[T]) Cap() int {
	return len(w.buf)
}

// At returns the i-th entry, oldest first.
func (w *Window[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= w.size {
		return zero, false
	}
	return w.buf[(w.head+i)%len(w.buf)], true
}

// Last returns the newest entry.
func (w *Window[T]) Last() (T, bool) {
	return w.At(w.size - 1)
}

// Values copies the entries into a new slice, oldest first.
func (w *Window[T]) Values() []T {
	out := make([]T, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

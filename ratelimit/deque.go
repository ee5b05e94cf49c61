package ratelimit

// Deque is a growable ring buffer. PushFront is how retried requests jump
// ahead of first-time submissions.
type Deque[T any] struct {
	buf  []T
	head int
	size int
}

func NewDeque[T any](capacity int) *Deque[T] {
	if capacity < 4 {
		capacity = 4
	}
	return &Deque[T]{buf: make([]T, capacity)}
}

func (d *Deque[T]) Len() int {
	return d.size
}

func (d *Deque[T]) PushBack(value T) {
	d.grow()
	d.buf[(d.head+d.size)%len(d.buf)] = value
	d.size++
}

func (d *Deque[T]) PushFront(value T) {
	d.grow()
	d.head = (d.head - 1 + len(d.buf)) % len(d.buf)
	d.buf[d.head] = value
	d.size++
}

func (d *Deque[T]) PopFront() (T, bool) {
	var zero T
	if d.size == 0 {
		return zero, false
	}
	value := d.buf[d.head]
	d.buf[d.head] = zero
	d.head = (d.head + 1) % len(d.buf)
	d.size--
	return value, true
}

func (d *Deque[T]) PeekFront() (T, bool) {
	var zero T
	if d.size == 0 {
		return zero, false
	}
	return d.buf[d.head], true
}

func (d *Deque[T]) grow() {
	if len(d.buf) == 0 {
		d.buf = make([]T, 4)
	}
	if d.size < len(d.buf) {
		return
	}
	next := make([]T, len(d.buf)*2)
	for i := 0; i < d.size; i++ {
		next[i] = d.buf[(d.head+i)%len(d.buf)]
	}
	d.buf = next
	d.head = 0
}

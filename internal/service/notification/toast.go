package notification

import (
	"sync"
	"time"
)

type Toast struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ToastQueue buffers toasts until the widget polls for them. When full the
// oldest toast is dropped.
type ToastQueue struct {
	mu     sync.Mutex
	limit  int
	toasts []Toast
	now    func() time.Time
}

func NewToastQueue(limit int) *ToastQueue {
	if limit <= 0 {
		limit = defaultToastBuffer
	}
	return &ToastQueue{limit: limit, now: time.Now}
}

func (q *ToastQueue) Toast(message string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.toasts = append(q.toasts, Toast{Message: message, At: q.now()})
	if over := len(q.toasts) - q.limit; over > 0 {
		q.toasts = q.toasts[over:]
	}
}

// Drain returns the pending toasts oldest first and empties the queue.
func (q *ToastQueue) Drain() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.toasts
	q.toasts = nil
	if out == nil {
		out = []Toast{}
	}
	return out
}

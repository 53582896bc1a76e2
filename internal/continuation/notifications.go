package continuation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification is a notify_owner record (spec §4.6 "append to a bounded
// notification ring the owner can later page through").
type Notification struct {
	ID          string
	SessionName string
	Conclusion  string
	Evidence    string
	Timestamp   time.Time
}

// newNotificationID allocates a unique identifier for a dashboard-bound
// Notification (spec §3 Notification entity).
func newNotificationID() string {
	return uuid.NewString()
}

// Ring is a fixed-capacity, overwrite-oldest notification buffer (spec §3
// "notification ring", default size 100 per config.NotificationRingSize).
type Ring struct {
	mu    sync.Mutex
	items []Notification
	cap   int
	next  int
	full  bool
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring{items: make([]Notification, capacity), cap: capacity}
}

// Push appends n, overwriting the oldest entry once the ring is full.
func (r *Ring) Push(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = n
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.full = true
	}
}

// All returns notifications oldest-first.
func (r *Ring) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Notification, r.next)
		copy(out, r.items[:r.next])
		return out
	}
	out := make([]Notification, r.cap)
	copy(out, r.items[r.next:])
	copy(out[r.cap-r.next:], r.items[:r.next])
	return out
}

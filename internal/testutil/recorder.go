package testutil

import (
	"context"
	"sync"

	"github.com/roach88/fulfil/internal/notify"
)

// Recorder is a notify.Dispatcher that keeps every notification it
// receives. Set Err to make deliveries fail.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
	Err  error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify implements notify.Dispatcher. Failed deliveries are not recorded.
func (r *Recorder) Notify(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

// All returns a copy of the recorded notifications in delivery order.
func (r *Recorder) All() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// Kinds returns the kinds of the recorded notifications in delivery order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

// OfKind returns the recorded notifications with the given kind.
func (r *Recorder) OfKind(kind string) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

package testutil

import (
	"context"
	"sync"

	"github.com/roach88/mtd/internal/listener"
)

// Journal is a shared, ordered log of listener notifications.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an entry.
func (j *Journal) Add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

// Entries returns a copy of the log.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// Recorder is a listener writing "<Name>.before", "<Name>.after" and
// "<Name>.error" to a Journal, and keeping the events it saw.
type Recorder struct {
	Name    string
	Journal *Journal

	mu     sync.Mutex
	events []listener.Event
}

var _ listener.Listener = (*Recorder)(nil)

// NewRecorder creates a recorder writing to j.
func NewRecorder(name string, j *Journal) *Recorder {
	return &Recorder{Name: name, Journal: j}
}

func (r *Recorder) Before(ctx context.Context, ev *listener.Event) error {
	r.mu.Lock()
	r.events = append(r.events, *ev)
	r.mu.Unlock()
	r.Journal.Add(r.Name + ".before")
	return nil
}

func (r *Recorder) After(ctx context.Context, ev *listener.Event, res listener.Result) error {
	r.Journal.Add(r.Name + ".after")
	return nil
}

func (r *Recorder) OnError(ctx context.Context, ev *listener.Event, err error) {
	r.Journal.Add(r.Name + ".error")
}

// Events returns the events seen by Before.
func (r *Recorder) Events() []listener.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]listener.Event(nil), r.events...)
}

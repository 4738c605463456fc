package session

import (
	"github.com/roach88/mtd/internal/config"
	"github.com/roach88/mtd/internal/executor"
	"github.com/roach88/mtd/internal/listener"
)

// Listening is a session whose statements are bracketed by listener
// notifications: Before in registration order, then the statement, then
// After (or OnError) in reverse order.
//
// A failing After does not discard the statement's result; both are
// returned.
type Listening struct {
	*Default
	listeners listener.Chain
}

var _ Session = (*Listening)(nil)

// NewListening returns a session notifying listeners around every
// statement.
func NewListening(id string, cfg *config.Configuration, exec executor.Executor, autoCommit bool, listeners listener.Chain) *Listening {
	d := NewDefault(id, cfg, exec, autoCommit)
	d.around = listeners.Around
	return &Listening{Default: d, listeners: listeners}
}

// Listeners returns the notified listeners in registration order.
func (s *Listening) Listeners() listener.Chain {
	return append(listener.Chain(nil), s.listeners...)
}

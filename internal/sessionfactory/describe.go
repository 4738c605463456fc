package sessionfactory

import (
	"fmt"

	"github.com/roach88/mtd/internal/executor"
	"github.com/roach88/mtd/internal/routing"
	"github.com/roach88/mtd/internal/session"
	"github.com/roach88/mtd/internal/txn"
)

// Composition describes how an opened session is put together.
type Composition struct {
	SessionID string `json:"session_id"`

	// Session is "default" or "listening".
	Session string `json:"session"`

	// Chain lists executors from outermost to innermost.
	Chain        []string `json:"chain"`
	Transaction  string   `json:"transaction"`
	AutoCommit   bool     `json:"auto_commit"`
	Listeners    int      `json:"listeners"`
	RoutedTables []string `json:"routed_tables,omitempty"`
}

// Describe reports the composition of s.
func Describe(s session.Session) Composition {
	c := Composition{SessionID: s.ID(), Session: "default"}
	if ls, ok := s.(*session.Listening); ok {
		c.Session = "listening"
		c.Listeners = len(ls.Listeners())
	}

	exec := s.Executor()
	c.AutoCommit = exec.AutoCommit()
	for {
		r, ok := exec.(*routing.Executor)
		if !ok {
			break
		}
		c.Chain = append(c.Chain, fmt.Sprintf("routing(notify=%t)", r.Notifies()))
		c.RoutedTables = r.Router().Tables()
		if r.Notifies() {
			c.Listeners = len(s.Configuration().Listeners())
		}
		exec = r.Inner()
	}
	if base, ok := exec.(*executor.Base); ok {
		c.Chain = append(c.Chain, fmt.Sprintf("base(%s)", base.Type()))
	} else {
		c.Chain = append(c.Chain, fmt.Sprintf("%T", exec))
	}

	switch tx := s.Executor().Transaction().(type) {
	case *txn.ManagedTransaction:
		c.Transaction = "managed"
	case *txn.SQLTransaction:
		c.Transaction = "sql"
	case nil:
		c.Transaction = "none"
	default:
		c.Transaction = fmt.Sprintf("%T", tx)
	}
	return c
}

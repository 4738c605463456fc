package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Logging logs every statement at debug level and statements slower than
// SlowThreshold at warn level.
type Logging struct {
	Logger        *slog.Logger
	SlowThreshold time.Duration

	mu     sync.Mutex
	starts map[*Event]time.Time
}

// NewLogging returns a Logging listener. A nil logger uses slog.Default().
func NewLogging(logger *slog.Logger, slow time.Duration) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{Logger: logger, SlowThreshold: slow, starts: make(map[*Event]time.Time)}
}

func (l *Logging) Before(ctx context.Context, ev *Event) error {
	l.mu.Lock()
	if l.starts == nil {
		l.starts = make(map[*Event]time.Time)
	}
	l.starts[ev] = time.Now()
	l.mu.Unlock()
	return nil
}

func (l *Logging) After(ctx context.Context, ev *Event, res Result) error {
	elapsed := l.elapsed(ev)
	attrs := []any{
		"session", ev.SessionID,
		"op", string(ev.Op),
		"statement", ev.Statement.ID,
		"table", ev.Table,
		"rows", len(res.Rows),
		"affected", res.Affected,
		"elapsed", elapsed,
	}
	if l.SlowThreshold > 0 && elapsed >= l.SlowThreshold {
		l.Logger.WarnContext(ctx, "slow statement", attrs...)
		return nil
	}
	l.Logger.DebugContext(ctx, "statement executed", attrs...)
	return nil
}

func (l *Logging) OnError(ctx context.Context, ev *Event, err error) {
	l.Logger.ErrorContext(ctx, "statement failed",
		"session", ev.SessionID,
		"op", string(ev.Op),
		"statement", ev.Statement.ID,
		"table", ev.Table,
		"elapsed", l.elapsed(ev),
		"error", err,
	)
}

func (l *Logging) elapsed(ev *Event) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	start, ok := l.starts[ev]
	if !ok {
		return 0
	}
	delete(l.starts, ev)
	return time.Since(start)
}

package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmorgan81/circuitcraft/internal/log"
)

const DefaultDuration = 5 * time.Second

type Notification struct {
	Message  string
	Duration time.Duration
}

func Error(message string) Notification {
	return Notification{Message: message, Duration: DefaultDuration}
}

// Notifier displays a notification. It has no error cases of its own.
type Notifier interface {
	Notify(context.Context, Notification)
}

// Flash queues notifications until the next page render drains them.
type Flash struct {
	mu      sync.Mutex
	pending []Notification
}

func (f *Flash) Notify(ctx context.Context, n Notification) {
	log.FromContextOrDiscard(ctx).WithGroup("flash").Info("queueing notification", "message", n.Message)
	f.mu.Lock()
	f.pending = append(f.pending, n)
	f.mu.Unlock()
}

// Drain returns and clears the queued notifications.
func (f *Flash) Drain() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

// Writer prints each notification on its own line, for the command line.
type Writer struct {
	W io.Writer
}

func (w Writer) Notify(ctx context.Context, n Notification) {
	log.FromContextOrDiscard(ctx).Error("notification", "message", n.Message)
	fmt.Fprintln(w.W, "error:", n.Message)
}

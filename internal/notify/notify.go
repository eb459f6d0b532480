// Package notify carries human readable success and failure events from the
// storefront components to whatever renders toasts for the shopper.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/lumen-apothecary/storefront/internal/logging"
)

// Level classifies an event for presentation.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Event is one notification.
type Event struct {
	Level   Level     `json:"level"`
	Topic   string    `json:"topic"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives events. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Success is shorthand for emitting a success event.
func Success(ctx context.Context, n Notifier, topic, message string) {
	emit(ctx, n, LevelSuccess, topic, message)
}

// Failure is shorthand for emitting an error event.
func Failure(ctx context.Context, n Notifier, topic, message string) {
	emit(ctx, n, LevelError, topic, message)
}

// Info is shorthand for emitting an info event.
func Info(ctx context.Context, n Notifier, topic, message string) {
	emit(ctx, n, LevelInfo, topic, message)
}

func emit(ctx context.Context, n Notifier, level Level, topic, message string) {
	if n == nil {
		return
	}
	n.Notify(ctx, Event{Level: level, Topic: topic, Message: message, At: time.Now().UTC()})
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) {}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	log *logging.Logger
}

// NewLogNotifier creates a notifier that logs every event.
func NewLogNotifier(log *logging.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(ctx context.Context, ev Event) {
	entry := l.log.WithContext(ctx).WithField("topic", ev.Topic).WithField("level", string(ev.Level))
	if ev.Level == LevelError {
		entry.Warn(ev.Message)
		return
	}
	entry.Info(ev.Message)
}

// Recorder keeps the most recent events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewRecorder keeps at most limit events; limit <= 0 keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = r.events[len(r.events)-r.limit:]
	}
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Drain returns the recorded events and forgets them.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Multi fans every event out to each notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

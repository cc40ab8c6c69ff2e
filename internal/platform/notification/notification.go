// Package notification publishes patient-flow transitions to the waiting-room
// display and patient portal channels. Delivery is best-effort: a failed or
// slow channel must never block or roll back a queue transition.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType identifies a patient-flow transition worth announcing.
type EventType string

const (
	EventEntryCalled           EventType = "entry.called"
	EventConsultationCompleted EventType = "consultation.completed"
)

// Event is the payload delivered to display/portal channels.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	TenantID  string    `json:"tenant_id"`
	BranchID  uuid.UUID `json:"branch_id"`
	QueueID   uuid.UUID `json:"queue_id"`
	EntryID   uuid.UUID `json:"entry_id"`
	PatientID uuid.UUID `json:"patient_id"`
	Position  int       `json:"position,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel delivers events to one destination (display board, portal push).
// Implementations live outside this core; delivery failures are reported via
// the returned error and logged, never propagated to the caller.
type Channel interface {
	Deliver(ctx context.Context, ev Event) error
}

// Publisher fans events out to all registered channels.
type Publisher struct {
	logger   zerolog.Logger
	mu       sync.RWMutex
	channels []Channel
}

func NewPublisher(logger zerolog.Logger, channels ...Channel) *Publisher {
	return &Publisher{logger: logger, channels: channels}
}

// Register adds a delivery channel.
func (p *Publisher) Register(ch Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, ch)
}

// Publish delivers the event to every channel. Errors are logged and
// swallowed; the queue transition that triggered the event has already
// committed by the time Publish runs.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	p.mu.RLock()
	channels := make([]Channel, len(p.channels))
	copy(channels, p.channels)
	p.mu.RUnlock()

	for _, ch := range channels {
		if err := ch.Deliver(ctx, ev); err != nil {
			p.logger.Warn().
				Err(err).
				Str("event", string(ev.Type)).
				Str("entry_id", ev.EntryID.String()).
				Msg("notification delivery failed")
		}
	}
}

// LogChannel writes events to the structured log. Used in development and as
// a fallback when no display hardware is wired up.
type LogChannel struct {
	Logger zerolog.Logger
}

func (c *LogChannel) Deliver(_ context.Context, ev Event) error {
	c.Logger.Info().
		Str("event", string(ev.Type)).
		Str("queue_id", ev.QueueID.String()).
		Str("entry_id", ev.EntryID.String()).
		Int("position", ev.Position).
		Msg("patient-flow event")
	return nil
}

// RecordingChannel captures delivered events for tests.
type RecordingChannel struct {
	mu         sync.Mutex
	events     []Event
	ShouldFail bool
	FailError  error
}

func (c *RecordingChannel) Deliver(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	if c.ShouldFail {
		return c.FailError
	}
	return nil
}

// Events returns a copy of the recorded events.
func (c *RecordingChannel) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

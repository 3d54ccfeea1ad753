package bus

import (
	"encoding/json"
	"time"

	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/outstanding"
)

// DefaultSubject is the subject prefix registry events are published under.
const DefaultSubject = "drainkit.tasks"

// EventType identifies a registry lifecycle event.
type EventType string

const (
	EventRegistered        EventType = "registered"
	EventCleared           EventType = "cleared"
	EventShutdownStarted   EventType = "shutdown_started"
	EventShutdownCompleted EventType = "shutdown_completed"
)

// Event is the JSON payload published for each registry event.
type Event struct {
	Type       EventType     `json:"type"`
	Token      string        `json:"token,omitempty"`
	Name       string        `json:"name,omitempty"`
	At         time.Time     `json:"at"`
	DurationMS int64         `json:"duration_ms,omitempty"`
	Pending    int           `json:"pending,omitempty"`
	Remaining  []string      `json:"remaining,omitempty"`
	Error      *errors.Error `json:"error,omitempty"`
}

// Publisher implements outstanding.Observer by publishing each registry
// event to "<subject>.<type>". Publish failures go to the error hook and
// never reach the registry.
type Publisher struct {
	bus     MessageBus
	subject string
	onError func(EventType, error)
	now     func() time.Time
}

var _ outstanding.Observer = (*Publisher)(nil)

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithSubject sets the subject prefix.
func WithSubject(subject string) PublisherOption {
	return func(p *Publisher) {
		if subject != "" {
			p.subject = subject
		}
	}
}

// WithErrorHandler sets the hook called when an event cannot be published.
func WithErrorHandler(fn func(EventType, error)) PublisherOption {
	return func(p *Publisher) {
		p.onError = fn
	}
}

// NewPublisher creates a Publisher on b.
func NewPublisher(b MessageBus, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		bus:     b,
		subject: DefaultSubject,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject returns the full subject for an event type.
func (p *Publisher) Subject(t EventType) string {
	return p.subject + "." + string(t)
}

// TaskRegistered implements outstanding.Observer.
func (p *Publisher) TaskRegistered(token outstanding.Token, task outstanding.Task) {
	p.publish(Event{
		Type:  EventRegistered,
		Token: string(token),
		Name:  task.Name,
		At:    task.RegisteredAt,
	})
}

// TaskCleared implements outstanding.Observer.
func (p *Publisher) TaskCleared(token outstanding.Token, task outstanding.Task, elapsed time.Duration) {
	p.publish(Event{
		Type:       EventCleared,
		Token:      string(token),
		Name:       task.Name,
		At:         p.now(),
		DurationMS: elapsed.Milliseconds(),
	})
}

// ShutdownStarted implements outstanding.Observer.
func (p *Publisher) ShutdownStarted(pending int) {
	p.publish(Event{
		Type:    EventShutdownStarted,
		At:      p.now(),
		Pending: pending,
	})
}

// ShutdownCompleted implements outstanding.Observer.
func (p *Publisher) ShutdownCompleted(result outstanding.ShutdownResult) {
	ev := Event{
		Type: EventShutdownCompleted,
		At:   p.now(),
	}
	if result.Err != nil {
		ev.Remaining = result.Outstanding.Names()
		ev.Error = eventError(result.Err)
	}
	p.publish(ev)
}

func (p *Publisher) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.fail(ev.Type, errors.Wrap(err, "encoding event"))
		return
	}
	if err := p.bus.Publish(p.Subject(ev.Type), data); err != nil {
		p.fail(ev.Type, err)
	}
}

func (p *Publisher) fail(t EventType, err error) {
	if p.onError != nil {
		p.onError(t, err)
	}
}

// eventError flattens err into a coded error for the wire.
func eventError(err error) *errors.Error {
	code := errors.Code(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	return errors.New(code, err.Error())
}

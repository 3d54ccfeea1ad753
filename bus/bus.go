package bus

import (
	"strings"

	"github.com/vinayprograms/drainkit/errors"
)

// Common errors.
var (
	ErrClosed         = errors.New(errors.ErrCodeUnavailable, "bus closed")
	ErrInvalidSubject = errors.New(errors.ErrCodeInvalidInput, "invalid subject")
)

// Message represents a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload.
	Data []byte
}

// MessageBus provides publish/subscribe messaging.
type MessageBus interface {
	// Publish sends a message to all subscribers of a subject.
	Publish(subject string, data []byte) error

	// Subscribe creates a subscription to a subject. The subject may use
	// NATS wildcards: "*" matches one token, a trailing ">" matches the rest.
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the bus connection.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// Channel is closed when subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is valid: non-empty, no empty tokens,
// no whitespace.
func ValidateSubject(subject string) error {
	if subject == "" || strings.ContainsAny(subject, " \t\r\n") {
		return ErrInvalidSubject
	}
	for _, tok := range strings.Split(subject, ".") {
		if tok == "" {
			return ErrInvalidSubject
		}
	}
	return nil
}

// matchSubject reports whether subject matches pattern.
func matchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

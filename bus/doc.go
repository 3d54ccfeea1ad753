// Package bus publishes outstanding-task lifecycle events over a message bus.
//
// # Overview
//
// MessageBus is a small publish/subscribe interface with two backends:
//
//   - NATSBus: production messaging using NATS
//   - MemoryBus: in-process implementation for tests and single-process use
//
// # Registry Events
//
// Publisher is an outstanding.Observer. Every registry event becomes a JSON
// Event on "<subject>.<type>":
//
//	pub := bus.NewPublisher(b, bus.WithSubject("orders.tasks"))
//	reg := outstanding.New(cfg, outstanding.WithObserver(pub))
//
//	sub, _ := b.Subscribe("orders.tasks.>")
//	for msg := range sub.Messages() {
//	    var ev bus.Event
//	    json.Unmarshal(msg.Data, &ev)
//	}
//
// Event types are registered, cleared, shutdown_started and
// shutdown_completed. A shutdown_completed event carries the error and the
// remaining task names when the drain timed out.
//
// Publishing is best effort. A failed publish is reported to the handler set
// with WithErrorHandler and never affects the registry.
package bus

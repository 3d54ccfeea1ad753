// Package shutdown coordinates process shutdown across components.
//
// # Overview
//
// A Coordinator runs registered handlers when the process is asked to stop,
// either by SIGTERM/SIGINT or by an explicit Shutdown call. Handlers are
// grouped into phases. Lower phases run first and handlers within a phase
// run concurrently.
//
// # Usage
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.HandleSignals()
//
//	coord.RegisterWithPhase("tasks", shutdown.Drain(reg), shutdown.PhaseDrain)
//	coord.RegisterFuncWithPhase("telemetry", provider.Shutdown, shutdown.PhaseFlush)
//	coord.RegisterFuncWithPhase("bus", closeBus, shutdown.PhaseClose)
//
//	<-coord.Done()
//	if err := coord.Err(); err != nil {
//	    os.Exit(1)
//	}
//
// # Draining Outstanding Tasks
//
// Drain adapts an outstanding.Registry to a ShutdownHandler. The registry
// stops accepting tasks and the handler returns once every outstanding task
// has cleared. A registry timeout or an expired shutdown context fails the
// handler. The error keeps the TIMEOUT code and lists the remaining task
// names under the "tasks" metadata key.
//
// # Phases
//
// PhaseDrain, PhaseFlush and PhaseClose are the phases used by the handlers
// drainkit wires. Handlers registered without a phase get
// Config.DefaultPhase.
//
// Handlers should respect context cancellation. The coordinator waits for
// every handler in a phase before moving on, and does not start a phase
// once the context has ended.
package shutdown

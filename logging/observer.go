package logging

import (
	"time"

	"github.com/vinayprograms/drainkit/outstanding"
)

// Observer returns an outstanding.Observer that logs registry events to l.
func Observer(l *Logger) outstanding.Observer {
	return registryObserver{log: l}
}

type registryObserver struct {
	log *Logger
}

func (o registryObserver) TaskRegistered(token outstanding.Token, task outstanding.Task) {
	o.log.TaskRegistered(string(token), task.Name)
}

func (o registryObserver) TaskCleared(token outstanding.Token, task outstanding.Task, elapsed time.Duration) {
	o.log.TaskCleared(string(token), task.Name, elapsed)
}

func (o registryObserver) ShutdownStarted(pending int) {
	o.log.ShutdownStarted(pending)
}

func (o registryObserver) ShutdownCompleted(result outstanding.ShutdownResult) {
	o.log.ShutdownCompleted(result.Err, result.Outstanding.Names())
}

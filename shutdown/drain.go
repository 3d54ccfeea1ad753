package shutdown

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/outstanding"
)

// Drainer is satisfied by *outstanding.Registry.
type Drainer interface {
	ShutdownContext(ctx context.Context) (outstanding.Tasks, error)
}

// Drain returns a handler that closes reg to new tasks and waits for the
// outstanding ones. If the registry times out, or ctx ends first, the
// handler fails with the remaining task names in the error metadata.
func Drain(reg Drainer) ShutdownHandler {
	return ShutdownFunc(func(ctx context.Context) error {
		remaining, err := reg.ShutdownContext(ctx)
		if err == nil {
			return nil
		}
		return errors.Wrap(err, fmt.Sprintf("%d outstanding tasks", len(remaining)),
			errors.WithMetadata("tasks", strings.Join(remaining.Names(), ",")))
	})
}

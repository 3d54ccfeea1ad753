// Package outstanding tracks in-flight units of work so a process can shut
// down gracefully.
//
// # Overview
//
// A Registry hands out a token for every task registered with it and forgets
// the task when the token is cleared. Calling Shutdown closes the registry to
// new work and defers the shutdown handler until every outstanding task has
// been cleared, or until the configured timeout elapses.
//
//	reg := outstanding.New(outstanding.Config{Timeout: 10 * time.Second})
//
//	token, err := reg.Register("flush-cache")
//	if err != nil {
//	    return err // outstanding.ErrShuttingDown
//	}
//	go func() {
//	    defer reg.Clear(token)
//	    flushCache()
//	}()
//
//	reg.Shutdown(func(res outstanding.ShutdownResult) {
//	    if res.Err != nil {
//	        log.Printf("%v: %v", res.Err, res.Outstanding.Names())
//	        os.Exit(1)
//	    }
//	    os.Exit(0)
//	})
//
// # Wrapping work
//
// Wrap and Run bracket a callback-style unit of work with Register and Clear.
// The unit's error and results are passed through untouched:
//
//	reg.Run("write-report", func(done outstanding.Done) {
//	    n, err := writeReport()
//	    done(err, n)
//	}, func(err error, results ...any) {
//	    // err is ErrShuttingDown if the job was refused
//	})
//
// # Shutdown
//
// The handler fires exactly once. A clear that empties the registry and the
// timeout timer race through a compare-and-swap; whichever lands first
// decides the result. Idle checks triggered by Clear during shutdown run on
// the registry's Executor rather than inside Clear, so Clear is safe to call
// from within completion handlers.
//
// Shutdown is single-shot. A second call returns ErrAlreadyShutdown.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Observers and the shutdown handler are
// always called without internal locks held.
package outstanding

package bilib

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// atexit is a minimal re-implementation of rclone's lib/atexit: a
// registry of cleanup functions run once, either explicitly via Run or
// automatically on SIGINT/SIGTERM, so an interrupted run gets one
// chance to rename its baselines to the error sentinel before the
// process dies.
var (
	mu        sync.Mutex
	fns       []func()
	ran       bool
	sigCh     chan os.Signal
	installed bool
)

// Register adds fn to the set of functions run on exit. Functions run
// in the reverse of registration order, most-recently-registered
// first, matching defer semantics.
func Register(fn func()) {
	mu.Lock()
	defer mu.Unlock()
	fns = append(fns, fn)
	if !installed {
		installed = true
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			Run()
			os.Exit(130)
		}()
	}
}

// Run executes every registered cleanup function exactly once. Safe to
// call more than once and from the signal handler concurrently with a
// normal exit path.
func Run() {
	mu.Lock()
	if ran {
		mu.Unlock()
		return
	}
	ran = true
	toRun := make([]func(), len(fns))
	copy(toRun, fns)
	mu.Unlock()

	for i := len(toRun) - 1; i >= 0; i-- {
		toRun[i]()
	}
}

// Package safego launches background goroutines that survive panics.
package safego

import "log/slog"

// Go runs fn in a new goroutine, recovering and logging any panic instead of
// letting it take the process down. Every fire-and-forget goroutine in the
// codebase (audit writes, purge sweeps, event fan-out) goes through here; a
// panic in one of them should cost one unit of work, not the server.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}

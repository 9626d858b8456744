package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors reported by the built-in checkers.
var (
	ErrNoSnapshot   = errors.New("no snapshot loaded")
	ErrDisconnected = errors.New("event stream not connected")
)

// SnapshotChecker passes once a campaign snapshot has been loaded.
func SnapshotChecker(loaded func() bool) Checker {
	return Checker{
		Name: "snapshot",
		Check: func(context.Context) error {
			if !loaded() {
				return ErrNoSnapshot
			}
			return nil
		},
	}
}

// StreamChecker passes while the live event stream is connected.
func StreamChecker(connected func() bool) Checker {
	return Checker{
		Name: "stream",
		Check: func(context.Context) error {
			if !connected() {
				return ErrDisconnected
			}
			return nil
		},
	}
}

// ProbeChecker wraps a dependency probe such as a database ping. Probes that
// take longer than slow are reported as failures even when they succeed.
func ProbeChecker(name string, slow time.Duration, probe func(context.Context) error) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			start := time.Now()
			if err := probe(ctx); err != nil {
				return err
			}
			if d := time.Since(start); slow > 0 && d > slow {
				return fmt.Errorf("slow: %v", d.Round(time.Millisecond))
			}
			return nil
		},
	}
}

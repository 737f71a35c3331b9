// Package clock provides the injectable time source every registry
// uses instead of calling time.Now() directly, so tests can control
// wall-clock behavior.
package clock

import "time"

// Clock returns the current time. The real implementation is
// time.Now; tests substitute a Fixed clock or their own Clock.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock backed by time.Now.
type Real struct{}

// Now returns the current wall-clock time.
func (Real) Now() time.Time { return time.Now() }

// Fixed is a Clock that always returns the same instant.
type Fixed struct{ At time.Time }

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return f.At }

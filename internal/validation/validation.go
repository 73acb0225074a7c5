// Package validation turns per-frame pass/fail signals into validated steps.
package validation

import "strings"

// DefaultRequired is the number of matching frames needed to validate a step.
const DefaultRequired = 10

// Counter counts matching frames for one step.
type Counter struct {
	Required int
	// Consecutive resets the count on every miss. When false, misses are
	// ignored and matches accumulate.
	Consecutive bool
	count       int
}

// NewCounter returns a consecutive counter; required <= 0 uses DefaultRequired.
func NewCounter(required int) *Counter {
	if required <= 0 {
		required = DefaultRequired
	}
	return &Counter{Required: required, Consecutive: true}
}

// Observe records one frame and reports whether the step is now valid.
func (c *Counter) Observe(match bool) bool {
	switch {
	case match:
		if c.count < c.Required {
			c.count++
		}
	case c.Consecutive && !c.Valid():
		c.count = 0
	}
	return c.Valid()
}

// Count returns the current number of counted matches.
func (c *Counter) Count() int {
	return c.count
}

// Valid reports whether the required number of matches has been reached.
func (c *Counter) Valid() bool {
	return c.count >= c.Required
}

// Reset clears the count.
func (c *Counter) Reset() {
	c.count = 0
}

// MajorityVote reports whether more than half of window is true.
func MajorityVote(window []bool) bool {
	n := 0
	for _, v := range window {
		if v {
			n++
		}
	}
	return 2*n > len(window)
}

// Window keeps the last Size observations for majority voting.
type Window struct {
	Size   int
	values []bool
}

// Push adds an observation and returns the current majority.
func (w *Window) Push(v bool) bool {
	w.values = append(w.values, v)
	if w.Size > 0 && len(w.values) > w.Size {
		w.values = w.values[len(w.values)-w.Size:]
	}
	return MajorityVote(w.values)
}

// koMarker tags classifier labels of a wrongly assembled part.
const koMarker = "_ko"

// IsKO reports whether label marks a rejected assembly of the same stage as
// step, e.g. "4_top_ko" for step "4_top_ok".
func IsKO(label, step string) bool {
	if !strings.Contains(label, koMarker) {
		return false
	}
	return stage(label) != "" && stage(label) == stage(step)
}

// stage returns the second underscore-separated field of a label.
func stage(label string) string {
	parts := strings.Split(label, "_")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

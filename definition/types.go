package definition

import (
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultContentType is used when a response does not declare one
const DefaultContentType = "application/json"

type (
	// Key identifies a definition in the registry
	Key struct {
		Method string
		Path   string
	}

	// Definition is one parsed mock endpoint. Everything but the countdown counter is fixed once parsed.
	Definition struct {
		Name      string
		Method    string
		Path      string
		Match     string
		Response  Response
		Countdown *Countdown
		Idle      time.Duration
		Source    string
	}

	// Response is what a steady endpoint answers with
	Response struct {
		Status      int
		Body        string
		ContentType string
	}

	// Countdown overrides the response status for a limited number of calls.
	// Build it with NewCountdown, a zero Countdown is never armed.
	Countdown struct {
		Calls     int64
		Status    int
		remaining *atomic.Int64
	}
)

func (k Key) String() string {
	return k.Method + " " + k.Path
}

// Key returns the registry key of the definition
func (d *Definition) Key() Key {
	return Key{Method: d.Method, Path: d.Path}
}

func (d *Definition) String() string {
	return fmt.Sprintf("%s (%s)", d.Key(), d.Name)
}

// NewCountdown returns an armed countdown for calls requests
func NewCountdown(calls int64, status int) *Countdown {
	remaining := &atomic.Int64{}
	remaining.Store(calls)

	return &Countdown{Calls: calls, Status: status, remaining: remaining}
}

// Take consumes one call. It reports true only for the caller that moved the counter from n > 0 to n-1.
func (c *Countdown) Take() bool {
	if c == nil || c.remaining == nil {
		return false
	}

	for {
		n := c.remaining.Load()
		if n <= 0 {
			return false
		}

		if c.remaining.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// Remaining returns the number of override responses left
func (c *Countdown) Remaining() int64 {
	if c == nil || c.remaining == nil {
		return 0
	}

	return c.remaining.Load()
}

// Armed reports whether the next call will be overridden
func (c *Countdown) Armed() bool {
	return c.Remaining() > 0
}

// SameConfig reports whether both countdowns were declared with the same calls and status
func (c *Countdown) SameConfig(other *Countdown) bool {
	if c == nil || other == nil {
		return false
	}

	return c.Calls == other.Calls && c.Status == other.Status
}

// Inherit shares the counter of a previous countdown so a reloaded definition does not re-arm
func (c *Countdown) Inherit(previous *Countdown) {
	if previous == nil || previous.remaining == nil {
		return
	}

	c.remaining = previous.remaining
}

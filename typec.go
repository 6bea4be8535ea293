// Package typec defines high level types shared by the packages implementing
// a USB Type-C power delivery sink on top of a FUSB302 port controller.
package typec

import "time"

// Clock is the time source a sink runs against. Millis must increase
// monotonically; wrap-around is handled by callers comparing differences.
type Clock interface {
	// Millis returns the number of milliseconds elapsed since an arbitrary
	// fixed point.
	Millis() uint32

	// Delay blocks for at least d. It's used for the short pauses the port
	// controller requires between register transactions.
	Delay(d time.Duration)
}

// SystemClock is a Clock backed by the time package.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock whose Millis starts at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Millis implements Clock.
func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Delay implements Clock.
func (c *SystemClock) Delay(d time.Duration) {
	time.Sleep(d)
}

// Event can store multiple events and return them in priority order.
type Event uint16

// Pop returns the next high priority event and clears it.
func (e *Event) Pop() Event {
	if *e == 0 {
		return EventNone
	}
	for r := Event(1); r <= 0x8000; r <<= 1 {
		if *e&r != 0 {
			*e &= ^r
			return r
		}
	}
	return EventNone // will never get here
}

// Add adds the events v to the set.
func (e *Event) Add(v Event) {
	*e |= v
}

// Has returns true if the event v is set without clearing it.
func (e Event) Has(v Event) bool {
	return e&v != 0
}

func (e Event) String() string {
	switch e {
	case EventNone:
		return "None"
	case EventDetached:
		return "Detached"
	case EventState:
		return "State"
	case EventCC:
		return "CC"
	case EventCapabilities:
		return "Capabilities"
	case EventRequested:
		return "Requested"
	case EventPowerReady:
		return "PowerReady"
	case EventVbus:
		return "Vbus"
	default:
		return "INVALID"
	}
}

// EventNone represents no event.
const EventNone Event = 0

// The events are listed in order of priority from highest to lowest. This
// means that in presence of multiple pending events, highest priority one is
// attended to first.
const (
	EventDetached     Event = 1 << iota // VBUS power lost, negotiation reset
	EventState                          // Negotiation state changed
	EventCC                             // Active CC pin changed (0 when lost)
	EventCapabilities                   // Source capabilities received or cleared
	EventRequested                      // A capability was requested by policy
	EventPowerReady                     // Source reported the requested power as stable
	EventVbus                           // New converged VBUS measurement
)

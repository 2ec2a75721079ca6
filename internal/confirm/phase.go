package confirm

import (
	"fmt"
	"time"
)

// Source tells where a confirmation request was detected.
type Source int

const (
	SourcePush Source = iota
	SourcePoll
	SourceCatchUp
)

func (s Source) String() string {
	switch s {
	case SourcePush:
		return "push"
	case SourcePoll:
		return "poll"
	case SourceCatchUp:
		return "catch-up"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// Phase is the lifecycle state of a confirmation request. The concrete
// types are Pending, Visible, Confirmed, Declined, Expired and Closed.
type Phase interface {
	String() string
	isPhase()
}

// Pending is a request waiting in the queue behind the visible one.
type Pending struct {
	// Position is 1 for the next request to be shown.
	Position int
}

// Visible is a request on screen awaiting the viewer's answer.
type Visible struct {
	Remaining time.Duration
	InFlight  bool
	// Error is the message of the last failed answer, if any.
	Error string
}

// Confirmed is shown briefly after the backend accepted a confirmation.
type Confirmed struct{ Message string }

// Declined is shown briefly after the backend accepted a decline.
type Declined struct{ Message string }

// Expired means the deadline passed before an answer was accepted. The
// dialog stays until closed.
type Expired struct{}

// Closed means the viewer dismissed the request without an answer.
type Closed struct{}

func (Pending) isPhase()   {}
func (Visible) isPhase()   {}
func (Confirmed) isPhase() {}
func (Declined) isPhase()  {}
func (Expired) isPhase()   {}
func (Closed) isPhase()    {}

func (Pending) String() string   { return "pending" }
func (Visible) String() string   { return "visible" }
func (Confirmed) String() string { return "confirmed" }
func (Declined) String() string  { return "declined" }
func (Expired) String() string   { return "expired" }
func (Closed) String() string    { return "closed" }

// Actionable reports whether confirm and decline are enabled.
func (v Visible) Actionable() bool {
	return !v.InFlight && v.Remaining > 0
}

// Countdown renders the remaining time.
func (v Visible) Countdown() string {
	return FormatCountdown(v.Remaining)
}

// FormatCountdown renders d as minutes and zero-padded whole seconds,
// rounding down. Negative durations render as zero.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%dm %02ds", secs/60, secs%60)
}

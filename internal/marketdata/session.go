package marketdata

import (
	"time"
	_ "time/tzdata"
)

// Session is a US equity trading session.
type Session string

const (
	SessionPremarket  Session = "premarket"
	SessionRegular    Session = "regular"
	SessionAfterhours Session = "afterhours"
	SessionClosed     Session = "closed"
)

var newYork = mustTZ("America/New_York")

func mustTZ(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func minuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }

// SessionAt classifies t into a New York session. Weekends are closed.
func SessionAt(t time.Time) Session {
	ny := t.In(newYork)
	if ny.Weekday() == time.Saturday || ny.Weekday() == time.Sunday {
		return SessionClosed
	}
	m := minuteOfDay(ny)
	switch {
	case m >= 4*60 && m < 9*60+30:
		return SessionPremarket
	case m >= 9*60+30 && m < 16*60:
		return SessionRegular
	case m >= 16*60 && m < 20*60:
		return SessionAfterhours
	default:
		return SessionClosed
	}
}

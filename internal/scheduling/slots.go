package scheduling

import (
	"errors"
	"time"
)

var (
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrInvalidWindow   = errors.New("window end must be after start")
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// AvailableSlots returns every slot of length duration whose start falls on a
// step boundary from window.Start, that fits inside window and that does not
// overlap any busy interval.
func AvailableSlots(window Interval, duration, step time.Duration, busy []Interval) ([]Interval, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if !window.End.After(window.Start) {
		return nil, ErrInvalidWindow
	}
	if step <= 0 {
		step = duration
	}

	slots := []Interval{}
	for start := window.Start; !start.Add(duration).After(window.End); start = start.Add(step) {
		candidate := Interval{Start: start, End: start.Add(duration)}
		free := true
		for _, b := range busy {
			if candidate.Overlaps(b) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, candidate)
		}
	}
	return slots, nil
}

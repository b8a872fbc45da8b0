package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-practice-portal/internal/appointment"
	"github.com/hackgods/dental-practice-portal/internal/config"
)

// Calendar is the part of the appointment service slot lookup needs.
type Calendar interface {
	ListProviderDay(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error)
}

type Service struct {
	calendar  Calendar
	step      time.Duration
	openHour  int
	openMin   int
	closeHour int
	closeMin  int
	loc       *time.Location
	now       func() time.Time
}

func NewService(calendar Calendar, cfg config.Config, loc *time.Location) (*Service, error) {
	oh, om, err := config.ParseClock(cfg.ClinicOpen)
	if err != nil {
		return nil, fmt.Errorf("clinic open: %w", err)
	}
	ch, cm, err := config.ParseClock(cfg.ClinicClose)
	if err != nil {
		return nil, fmt.Errorf("clinic close: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		calendar:  calendar,
		step:      cfg.SlotStep,
		openHour:  oh,
		openMin:   om,
		closeHour: ch,
		closeMin:  cm,
		loc:       loc,
		now:       time.Now,
	}, nil
}

// Slots lists the free slots of the given duration for a provider on date.
// Slots that start before now are dropped.
func (s *Service) Slots(ctx context.Context, providerID uuid.UUID, date time.Time, duration time.Duration) ([]Interval, error) {
	y, m, d := date.In(s.loc).Date()
	window := Interval{
		Start: time.Date(y, m, d, s.openHour, s.openMin, 0, 0, s.loc),
		End:   time.Date(y, m, d, s.closeHour, s.closeMin, 0, 0, s.loc),
	}

	booked, err := s.calendar.ListProviderDay(ctx, providerID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("load provider calendar: %w", err)
	}
	busy := make([]Interval, 0, len(booked))
	for _, a := range booked {
		if a.Status.Blocking() {
			busy = append(busy, Interval{Start: a.Start, End: a.End})
		}
	}

	now := s.now()
	if now.After(window.Start) {
		window.Start = alignUp(window.Start, now, s.step)
		if !window.End.After(window.Start) {
			return []Interval{}, nil
		}
	}

	return AvailableSlots(window, duration, s.step, busy)
}

// alignUp moves from forward to the first step boundary at or after t.
func alignUp(from, t time.Time, step time.Duration) time.Time {
	if step <= 0 {
		return t
	}
	n := t.Sub(from) / step
	aligned := from.Add(n * step)
	if aligned.Before(t) {
		aligned = aligned.Add(step)
	}
	return aligned
}

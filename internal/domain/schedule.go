package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrOffGrid              = errors.New("time is not aligned to the slot grid")
	ErrOutsideBusinessHours = errors.New("time is outside business hours")
)

// SchedulePolicy describes when the shop takes bookings. Times are minutes
// since midnight; Close is exclusive, so the last slot starts at
// Close-SlotMinutes.
type SchedulePolicy struct {
	Open        int
	Close       int
	SlotMinutes int
	ClosedDays  []time.Weekday
}

func DefaultSchedulePolicy() SchedulePolicy {
	return SchedulePolicy{
		Open:        8 * 60,
		Close:       18 * 60,
		SlotMinutes: 30,
		ClosedDays:  []time.Weekday{time.Sunday},
	}
}

func NewSchedulePolicy(open, closeAt string, slotMinutes int, closedDays []string) (SchedulePolicy, error) {
	o, err := ParseTime(open)
	if err != nil {
		return SchedulePolicy{}, fmt.Errorf("open: %w", err)
	}
	c, err := ParseTime(closeAt)
	if err != nil {
		return SchedulePolicy{}, fmt.Errorf("close: %w", err)
	}
	if slotMinutes <= 0 || 60%slotMinutes != 0 {
		return SchedulePolicy{}, fmt.Errorf("slot minutes must divide an hour, got %d", slotMinutes)
	}
	if c-o < slotMinutes {
		return SchedulePolicy{}, errors.New("close must be at least one slot after open")
	}
	if o%slotMinutes != 0 || c%slotMinutes != 0 {
		return SchedulePolicy{}, errors.New("open and close must sit on the slot grid")
	}

	days := make([]time.Weekday, 0, len(closedDays))
	for _, name := range closedDays {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		wd, ok := parseWeekday(name)
		if !ok {
			return SchedulePolicy{}, fmt.Errorf("unknown weekday %q", name)
		}
		days = append(days, wd)
	}

	return SchedulePolicy{Open: o, Close: c, SlotMinutes: slotMinutes, ClosedDays: days}, nil
}

// CheckTime reports whether minutes (since midnight) is a slot start inside
// business hours.
func (p SchedulePolicy) CheckTime(minutes int) error {
	if minutes%p.SlotMinutes != 0 {
		return ErrOffGrid
	}
	if minutes < p.Open || minutes+p.SlotMinutes > p.Close {
		return ErrOutsideBusinessHours
	}
	return nil
}

func (p SchedulePolicy) CheckGrid(minutes int) error {
	if minutes%p.SlotMinutes != 0 {
		return ErrOffGrid
	}
	return nil
}

func (p SchedulePolicy) IsClosed(day time.Time) bool {
	for _, wd := range p.ClosedDays {
		if day.Weekday() == wd {
			return true
		}
	}
	return false
}

// Slots lists every slot start of a business day in order.
func (p SchedulePolicy) Slots() []string {
	out := make([]string, 0, (p.Close-p.Open)/p.SlotMinutes)
	for m := p.Open; m+p.SlotMinutes <= p.Close; m += p.SlotMinutes {
		out = append(out, FormatMinutes(m))
	}
	return out
}

func parseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(name)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if name == full || name == full[:3] {
			return wd, true
		}
	}
	return 0, false
}

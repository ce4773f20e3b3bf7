package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	ErrMalformedDate = errors.New("date must be YYYY-MM-DD")
	ErrMalformedTime = errors.New("time must be HH:MM")
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// Slot identifies one bookable unit: a barber at a calendar date and time of day.
type Slot struct {
	BarberID uuid.UUID
	Date     string
	Time     string
}

func (s Slot) At() SlotTime {
	return SlotTime{Date: s.Date, Time: s.Time}
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %s %s", s.BarberID, s.Date, s.Time)
}

// SlotTime is the date and time part of a slot, used when the barber is fixed.
type SlotTime struct {
	Date string
	Time string
}

// ParseDate parses a YYYY-MM-DD string that must name a real calendar date.
func ParseDate(s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, ErrMalformedDate
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrMalformedDate
	}
	return d, nil
}

// ParseTime parses a 24-hour HH:MM string and returns minutes since midnight.
func ParseTime(s string) (int, error) {
	if !timePattern.MatchString(s) {
		return 0, ErrMalformedTime
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, ErrMalformedTime
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatMinutes(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

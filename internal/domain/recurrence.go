package domain

import "errors"

var (
	ErrInvalidStartDate = errors.New("invalid recurrence start date")
	ErrInvalidHorizon   = errors.New("invalid recurrence horizon")
)

// ExpandWeekly returns the dates of a weekly series that starts on startDate,
// excluding startDate itself, up to and including horizonEnd. Every date falls
// on the weekday of startDate.
func ExpandWeekly(startDate, horizonEnd string) ([]string, error) {
	start, err := ParseDate(startDate)
	if err != nil {
		return nil, ErrInvalidStartDate
	}
	end, err := ParseDate(horizonEnd)
	if err != nil {
		return nil, ErrInvalidHorizon
	}

	out := make([]string, 0, 16)
	for d := start.AddDate(0, 0, 7); !d.After(end); d = d.AddDate(0, 0, 7) {
		out = append(out, d.Format(DateLayout))
	}
	return out, nil
}

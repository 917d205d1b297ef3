// Package calendar decides which submissions belong to the current academic term.
package calendar

import (
	"fmt"
	"time"

	"recognition-review-backend/pkg/config"
)

const dateLayout = "2006-01-02"

// Term is a closed date range [Start, End] evaluated in its location.
type Term struct {
	start time.Time
	end   time.Time // exclusive, midnight after the last day
}

// NewTerm builds a term from two YYYY-MM-DD dates, both days included.
func NewTerm(start, end string, loc *time.Location) (*Term, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := time.ParseInLocation(dateLayout, start, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid term start %q: %w", start, err)
	}
	e, err := time.ParseInLocation(dateLayout, end, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid term end %q: %w", end, err)
	}
	if e.Before(s) {
		return nil, fmt.Errorf("term ends (%s) before it starts (%s)", end, start)
	}
	return &Term{start: s, end: e.AddDate(0, 0, 1)}, nil
}

func (t *Term) IsActive(ts time.Time) bool {
	return !ts.Before(t.start) && ts.Before(t.end)
}

func (t *Term) Start() time.Time { return t.start }

// End is the last instant of the term's final day.
func (t *Term) End() time.Time { return t.end.Add(-time.Nanosecond) }

// Archive is the relaxed predicate used for archived listings.
type Archive struct{}

func (Archive) IsActive(time.Time) bool { return true }

// Period is what the review core consumes.
type Period interface {
	IsActive(t time.Time) bool
}

// FromConfig returns the active period (nil when no term is configured, meaning everything
// counts), the archive predicate, and the calendar location.
func FromConfig(cfg *config.Config) (Period, Period, *time.Location, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.ActivePeriodStart == "" && cfg.ActivePeriodEnd == "" {
		return nil, Archive{}, loc, nil
	}
	term, err := NewTerm(cfg.ActivePeriodStart, cfg.ActivePeriodEnd, loc)
	if err != nil {
		return nil, nil, nil, err
	}
	return term, Archive{}, loc, nil
}

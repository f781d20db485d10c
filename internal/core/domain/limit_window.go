package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WindowKind tags a LimitWindow as one of the recurring calendar periods or a
// one-off discretionary date.
type WindowKind string

const (
	WindowDiscretionary WindowKind = "discretionary"
	WindowDaily         WindowKind = "daily"
	WindowWeekly        WindowKind = "weekly"
	WindowMonthly       WindowKind = "monthly"
)

// Valid reports whether k is a known window kind.
func (k WindowKind) Valid() bool {
	switch k {
	case WindowDiscretionary, WindowDaily, WindowWeekly, WindowMonthly:
		return true
	}
	return false
}

// Recurring reports whether the kind repeats every calendar period.
func (k WindowKind) Recurring() bool {
	return k == WindowDaily || k == WindowWeekly || k == WindowMonthly
}

// Priority orders kinds when several windows apply; lower goes first.
func (k WindowKind) Priority() int {
	switch k {
	case WindowDiscretionary:
		return 0
	case WindowDaily:
		return 1
	case WindowWeekly:
		return 2
	case WindowMonthly:
		return 3
	}
	return 4
}

// LimitWindow is a spending ceiling defined by a parent for one child.
//
// For recurring kinds Start/End bound the span in which the definition is in
// force (End nil means open-ended) and every instant inside it resolves to one
// calendar period. A discretionary window has a single period equal to its
// explicit [Start, End]. End is inclusive.
type LimitWindow struct {
	WindowID string          `json:"windowID"`
	ChildID  string          `json:"childID"`
	Kind     WindowKind      `json:"kind"`
	Ceiling  decimal.Decimal `json:"ceiling"`
	Category string          `json:"category,omitempty"` // empty means every category
	Start    time.Time       `json:"start"`
	End      *time.Time      `json:"end,omitempty"`
	IsActive bool            `json:"isActive"`
	AuditFields
}

// Covers reports whether t falls inside the window's span.
func (w LimitWindow) Covers(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	return w.End == nil || !t.After(*w.End)
}

// Expired reports whether the window's end has passed at t.
func (w LimitWindow) Expired(t time.Time) bool {
	return w.End != nil && t.After(*w.End)
}

// AppliesTo reports whether the window is in force at t for the given category.
func (w LimitWindow) AppliesTo(t time.Time, category string) bool {
	return w.IsActive && w.Covers(t) && w.MatchesCategory(category)
}

// MatchesCategory reports whether a payment in category counts toward the window.
func (w LimitWindow) MatchesCategory(category string) bool {
	return w.Category == "" || w.Category == category
}

// Overlaps reports whether the spans of w and other intersect.
func (w LimitWindow) Overlaps(other LimitWindow) bool {
	if w.End != nil && w.End.Before(other.Start) {
		return false
	}
	if other.End != nil && other.End.Before(w.Start) {
		return false
	}
	return true
}

// PeriodAt resolves the calendar period of the window that contains t, using
// loc as the fixed zone for day boundaries.
func (w LimitWindow) PeriodAt(t time.Time, loc *time.Location) WindowPeriod {
	if w.Kind == WindowDiscretionary {
		end := w.Start
		if w.End != nil {
			end = *w.End
		}
		return WindowPeriod{Start: w.Start.UTC(), End: end.UTC()}
	}
	return CalendarPeriod(w.Kind, t, loc)
}

// WindowPeriod is one concrete [Start, End] range; End is inclusive.
type WindowPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies inside the period.
func (p WindowPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// CalendarPeriod computes the canonical period of a recurring kind containing t.
// Boundaries follow the local calendar of loc, so a daily period on a DST
// transition date spans 23 or 25 elapsed hours but is still a single day.
// Weeks start on Monday.
func CalendarPeriod(kind WindowKind, t time.Time, loc *time.Location) WindowPeriod {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	y, m, d := local.Date()

	var start, next time.Time
	switch kind {
	case WindowWeekly:
		offset := (int(local.Weekday()) + 6) % 7
		start = time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
		next = time.Date(y, m, d-offset+7, 0, 0, 0, 0, loc)
	case WindowMonthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		next = time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
	default:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		next = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return WindowPeriod{Start: start.UTC(), End: next.Add(-Precision).UTC()}
}

// DayBounds returns the inclusive bounds of a calendar date in loc.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	p := CalendarPeriod(WindowDaily, time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, loc), loc)
	return p.Start, p.End
}

// WindowUsage is a window resolved for one period together with the amount
// already reserved against that period.
type WindowUsage struct {
	Window   LimitWindow     `json:"window"`
	Period   WindowPeriod    `json:"period"`
	Consumed decimal.Decimal `json:"consumed"`
}

// RemainingCapacity is ceiling minus consumed, clamped at zero.
func (u WindowUsage) RemainingCapacity() decimal.Decimal {
	remaining := u.Window.Ceiling.Sub(u.Consumed)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Reservation records capacity a pending payment holds against one window period.
type Reservation struct {
	TransactionID string          `json:"transactionID"`
	WindowID      string          `json:"windowID"`
	PeriodStart   time.Time       `json:"periodStart"`
	Amount        decimal.Decimal `json:"amount"`
}

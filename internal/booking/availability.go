package booking

import (
	"fmt"
	"slices"
	"time"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
)

// Window is a half-open stay [Start, End).
type Window struct {
	Start DateTime `json:"start"`
	End   DateTime `json:"end"`
}

func NewWindow(from, to time.Time) Window {
	return Window{Start: NewDateTime(from), End: NewDateTime(to)}
}

func (w Window) Valid() bool {
	return w.Start.Before(w.End.Time)
}

func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End.Time) && o.Start.Before(w.End.Time)
}

func (w Window) Contains(o Window) bool {
	return !o.Start.Before(w.Start.Time) && !o.End.After(w.End.Time)
}

func (w Window) StrictlyContains(o Window) bool {
	return w.Start.Before(o.Start.Time) && w.End.After(o.End.Time)
}

func (w Window) Equal(o Window) bool {
	return w.Start.Equal(o.Start.Time) && w.End.Equal(o.End.Time)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(dateTimeLayout), w.End.Format(dateTimeLayout))
}

type Interval struct {
	Window
	Status Status `json:"status"`
}

// Availability is the ordered list of a room's intervals. Intervals never overlap.
type Availability struct {
	Intervals []Interval `json:"intervals"`
}

func NewAvailability(open Window) Availability {
	return Availability{Intervals: []Interval{{Window: open, Status: StatusAvailable}}}
}

func (a Availability) Clone() Availability {
	return Availability{Intervals: slices.Clone(a.Intervals)}
}

func (a Availability) Available() []Window {
	return a.windows(StatusAvailable)
}

func (a Availability) Booked() []Window {
	return a.windows(StatusBooked)
}

func (a Availability) windows(status Status) []Window {
	var res []Window

	for _, interval := range a.Intervals {
		if interval.Status == status {
			res = append(res, interval.Window)
		}
	}

	return res
}

// IsFree reports whether no booked interval overlaps w.
func (a Availability) IsFree(w Window) bool {
	for _, booked := range a.Booked() {
		if booked.Overlaps(w) {
			return false
		}
	}

	return true
}

// Offers reports whether some available interval strictly contains w.
func (a Availability) Offers(w Window) bool {
	for _, available := range a.Available() {
		if available.StrictlyContains(w) {
			return true
		}
	}

	return false
}

// Book moves w from the available bucket to the booked one. w has to lie inside a single
// available interval, which is split around it.
func (a *Availability) Book(w Window) error {
	if !w.Valid() {
		return fmt.Errorf("book %v: %w", w, ErrLogic)
	}

	if !a.IsFree(w) {
		return fmt.Errorf("book %v: %w", w, ErrWindowUnavailable)
	}

	idx := slices.IndexFunc(a.Intervals, func(i Interval) bool {
		return i.Status == StatusAvailable && i.Contains(w)
	})
	if idx < 0 {
		return fmt.Errorf("book %v: %w", w, ErrWindowUnavailable)
	}

	open := a.Intervals[idx]
	parts := make([]Interval, 0, 3) //nolint:gomnd

	if open.Start.Before(w.Start.Time) {
		parts = append(parts, Interval{Window: Window{Start: open.Start, End: w.Start}, Status: StatusAvailable})
	}

	parts = append(parts, Interval{Window: w, Status: StatusBooked})

	if w.End.Before(open.End.Time) {
		parts = append(parts, Interval{Window: Window{Start: w.End, End: open.End}, Status: StatusAvailable})
	}

	a.Intervals = slices.Replace(a.Intervals, idx, idx+1, parts...)

	return nil
}

// Release turns the booked interval equal to w back into an available one. It reports
// whether such an interval existed.
func (a *Availability) Release(w Window) bool {
	idx := slices.IndexFunc(a.Intervals, func(i Interval) bool {
		return i.Status == StatusBooked && i.Window.Equal(w)
	})
	if idx < 0 {
		return false
	}

	a.Intervals[idx].Status = StatusAvailable
	a.coalesce()

	return true
}

// ReleaseEnded makes every booked interval that ended at or before now available again and
// returns the released windows.
func (a *Availability) ReleaseEnded(now DateTime) []Window {
	var released []Window

	for i := range a.Intervals {
		if a.Intervals[i].Status == StatusBooked && !a.Intervals[i].End.After(now.Time) {
			a.Intervals[i].Status = StatusAvailable
			released = append(released, a.Intervals[i].Window)
		}
	}

	if len(released) > 0 {
		a.coalesce()
	}

	return released
}

func (a *Availability) coalesce() {
	slices.SortFunc(a.Intervals, func(x, y Interval) int {
		return x.Start.Compare(y.Start.Time)
	})

	merged := a.Intervals[:0]

	for _, interval := range a.Intervals {
		last := len(merged) - 1
		if last >= 0 &&
			merged[last].Status == StatusAvailable &&
			interval.Status == StatusAvailable &&
			!interval.Start.After(merged[last].End.Time) {
			if interval.End.After(merged[last].End.Time) {
				merged[last].End = interval.End
			}

			continue
		}

		merged = append(merged, interval)
	}

	a.Intervals = merged
}

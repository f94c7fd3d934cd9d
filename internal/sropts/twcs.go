package sropts

import "fmt"

// Resolution is the unit SR timestamps are interpreted in before
// windowing (spec.md §4.4).
type Resolution string

const (
	ResolutionSeconds      Resolution = "SECONDS"
	ResolutionMilliseconds Resolution = "MILLISECONDS"
	ResolutionMicroseconds Resolution = "MICROSECONDS"
)

// microsPerUnit converts one unit of r into microseconds.
func (r Resolution) microsPerUnit() (int64, error) {
	switch r {
	case ResolutionSeconds:
		return 1_000_000, nil
	case ResolutionMilliseconds:
		return 1_000, nil
	case ResolutionMicroseconds, "":
		return 1, nil
	default:
		return 0, fmt.Errorf("sropts: unknown timestamp_resolution %q", r)
	}
}

// WindowUnit is the unit compaction_window_size is expressed in.
type WindowUnit string

const (
	WindowUnitMinutes WindowUnit = "MINUTES"
	WindowUnitHours   WindowUnit = "HOURS"
	WindowUnitDays    WindowUnit = "DAYS"
)

func (u WindowUnit) microsPerUnit() (int64, error) {
	switch u {
	case WindowUnitMinutes:
		return 60_000_000, nil
	case WindowUnitHours:
		return 3_600_000_000, nil
	case WindowUnitDays, "":
		return 86_400_000_000, nil
	default:
		return 0, fmt.Errorf("sropts: unknown compaction_window_unit %q", u)
	}
}

// TWCS holds the Time-Window-specific options (spec.md §4.4, §6). The
// nested STCS options drive both the hot-window STCS pass and the
// backlog tracker's per-window inner trackers.
type TWCS struct {
	Common
	STCS STCS

	Resolution Resolution

	// WindowSizeUnits is compaction_window_size/compaction_window_unit
	// converted into Resolution's unit — the same unit ToResolution
	// produces — so that window arithmetic is a plain integer floor
	// division (spec.md §4.4: "after converting to the configured
	// resolution").
	WindowSizeUnits int64
}

// ParseTWCS parses the full TWCS option set, common and nested STCS
// fields included.
func ParseTWCS(m Map) (TWCS, error) {
	if err := ValidateKeys(m); err != nil {
		return TWCS{}, err
	}
	stcs, err := ParseSTCS(m)
	if err != nil {
		return TWCS{}, err
	}
	o := TWCS{Common: stcs.Common, STCS: stcs, Resolution: ResolutionMicroseconds}

	if v, ok := m["timestamp_resolution"]; ok {
		o.Resolution = Resolution(v)
	}
	if _, err := o.Resolution.microsPerUnit(); err != nil {
		return o, err
	}

	unit := WindowUnitDays
	if v, ok := m["compaction_window_unit"]; ok {
		unit = WindowUnit(v)
	}
	unitMicros, err := unit.microsPerUnit()
	if err != nil {
		return o, err
	}

	windowSize, err := toInt64(m, "compaction_window_size", 1)
	if err != nil {
		return o, err
	}
	if windowSize <= 0 {
		return o, fmt.Errorf("sropts: invalid compaction_window_size %d", windowSize)
	}
	resMicros, _ := o.Resolution.microsPerUnit()
	o.WindowSizeUnits = windowSize * unitMicros / resMicros
	if o.WindowSizeUnits <= 0 {
		return o, fmt.Errorf("sropts: compaction_window_size too small for resolution %s", o.Resolution)
	}
	return o, nil
}

// ToResolution converts a raw SR timestamp (assumed already in
// microseconds, this module's canonical unit) into the strategy's
// configured resolution by dividing out the excess precision.
func (o TWCS) ToResolution(microsTimestamp int64) int64 {
	perUnit, _ := o.Resolution.microsPerUnit()
	if perUnit <= 1 {
		return microsTimestamp
	}
	return microsTimestamp / perUnit
}

// WindowLowerBound floors a raw microsecond timestamp to its window's
// lower bound (in resolution-space), per spec.md §4.4 / ScyllaDB's
// get_window_lower_bound. Shared by internal/strategy's window grouping
// and internal/backlog's per-window tracker so both bucket SRs into the
// same windows.
func (o TWCS) WindowLowerBound(microsTimestamp int64) int64 {
	ts := o.ToResolution(microsTimestamp)
	if o.WindowSizeUnits <= 0 {
		return ts
	}
	return (ts / o.WindowSizeUnits) * o.WindowSizeUnits
}

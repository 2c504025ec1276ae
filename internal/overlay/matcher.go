package overlay

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTolerance is the widest gap between a point and an hourly entry
// that still counts as a match.
const DefaultTolerance = 30 * time.Minute

// localLayouts are tried, in order, for series entries without an offset.
var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// MatchMode selects the time comparison used by the Matcher.
type MatchMode int

const (
	// MatchAbsolute matches when |point - entry| <= tolerance.
	MatchAbsolute MatchMode = iota

	// MatchLegacy matches when entry - point <= tolerance, without the
	// absolute value. Any entry at or before the point matches, so the
	// first series entry wins for every later point.
	MatchLegacy
)

func (m MatchMode) String() string {
	switch m {
	case MatchAbsolute:
		return "absolute"
	case MatchLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("MatchMode(%d)", int(m))
	}
}

// ParseMatchMode parses "absolute" or "legacy".
func ParseMatchMode(s string) (MatchMode, error) {
	switch s {
	case "", "absolute":
		return MatchAbsolute, nil
	case "legacy":
		return MatchLegacy, nil
	default:
		return 0, fmt.Errorf("unknown match mode %q", s)
	}
}

// MatcherConfig holds configuration for the Matcher.
type MatcherConfig struct {
	// Tolerance is the match window (default: DefaultTolerance).
	Tolerance time.Duration

	// Mode selects the comparison (default: MatchAbsolute).
	Mode MatchMode

	// Location interprets series entries without an offset when the
	// record carries no usable timezone (default: UTC).
	Location *time.Location
}

// Matcher finds the hourly entry that applies to a point's timestamp.
type Matcher struct {
	tolerance int64 // seconds
	mode      MatchMode
	loc       *time.Location

	mu    sync.RWMutex
	zones map[string]*time.Location
}

// NewMatcher creates a Matcher.
func NewMatcher(cfg MatcherConfig) *Matcher {
	tol := cfg.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Matcher{
		tolerance: int64(tol / time.Second),
		mode:      cfg.Mode,
		loc:       loc,
		zones:     make(map[string]*time.Location),
	}
}

// Tolerance returns the match window.
func (m *Matcher) Tolerance() time.Duration {
	return time.Duration(m.tolerance) * time.Second
}

// FindIndex returns the first index of series whose time matches ts
// (epoch seconds). Entries that do not parse are skipped.
func (m *Matcher) FindIndex(ts int64, series []string) (int, bool) {
	return m.findIndex(ts, series, m.loc)
}

func (m *Matcher) findIndex(ts int64, series []string, loc *time.Location) (int, bool) {
	for i, s := range series {
		t, ok := parseEntry(s, loc)
		if !ok {
			continue
		}
		if m.matches(t.Unix() - ts) {
			return i, true
		}
	}
	return -1, false
}

func (m *Matcher) matches(diff int64) bool {
	if m.mode == MatchLegacy {
		return diff <= m.tolerance
	}
	if diff < 0 {
		diff = -diff
	}
	return diff <= m.tolerance
}

func parseEntry(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MetricValue is the value of one hourly metric at a point. Valid is false
// when the time did not match or the value is missing or null.
type MetricValue struct {
	Value float64
	Valid bool

	// Index is the matched hourly index, or -1.
	Index int

	// Time is the matched hourly entry, as sent by the backend.
	Time string

	Unit string
}

// Value resolves metric for an annotated point. Local series entries are
// read in the record's own timezone when it names a known zone.
func (m *Matcher) Value(ap AnnotatedPoint, metric string) MetricValue {
	mv := MetricValue{Index: -1}
	rec := ap.Weather
	if rec == nil {
		return mv
	}
	mv.Unit = rec.Unit(metric)

	idx, ok := m.findIndex(ap.Point.Timestamp, rec.Hourly.Time, m.location(rec.Timezone))
	if !ok {
		return mv
	}
	mv.Index = idx
	mv.Time = rec.Hourly.Time[idx]

	if v, ok := rec.Value(metric, idx); ok {
		mv.Value = v
		mv.Valid = true
	}
	return mv
}

// location returns the zone named by a record, cached, or the default.
func (m *Matcher) location(name string) *time.Location {
	if name == "" {
		return m.loc
	}

	m.mu.RLock()
	loc, ok := m.zones[name]
	m.mu.RUnlock()
	if ok {
		return loc
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = m.loc
	}

	m.mu.Lock()
	m.zones[name] = loc
	m.mu.Unlock()
	return loc
}

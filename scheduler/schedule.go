// Package scheduler provides the timer-driven enrichment scheduler.
package scheduler

import (
	"fmt"
	"time"
)

// Schedule is the configuration governing when the scheduler next triggers an
// enrichment run. Owned exclusively by its Scheduler; mutated only through
// UpdateSchedule.
type Schedule struct {
	Provider          string        `json:"provider"`
	IntelligenceTypes []string      `json:"intelligence_types"`
	GeographicFocus   []string      `json:"geographic_focus"`
	Interval          time.Duration `json:"interval"`
	Enabled           bool          `json:"enabled"`
	LastRun           *time.Time    `json:"last_run,omitempty"`
	NextRun           time.Time     `json:"next_run"`
}

// NewSchedule builds a schedule whose first run is due one interval from now.
func NewSchedule(provider string, intelligenceTypes, geographicFocus []string, interval time.Duration, enabled bool, now time.Time) Schedule {
	return Schedule{
		Provider:          provider,
		IntelligenceTypes: intelligenceTypes,
		GeographicFocus:   geographicFocus,
		Interval:          interval,
		Enabled:           enabled,
		NextRun:           now.Add(interval),
	}
}

// clone deep-copies the slices so callers cannot mutate scheduler-owned state.
func (s Schedule) clone() Schedule {
	c := s
	c.IntelligenceTypes = append([]string(nil), s.IntelligenceTypes...)
	c.GeographicFocus = append([]string(nil), s.GeographicFocus...)
	if s.LastRun != nil {
		t := *s.LastRun
		c.LastRun = &t
	}
	return c
}

// Info is the scheduler control-surface record served to operators.
type Info struct {
	Enabled           bool     `json:"enabled"`
	Provider          string   `json:"provider"`
	Interval          string   `json:"interval"`
	IntelligenceTypes []string `json:"intelligence_types"`
	GeographicFocus   []string `json:"geographic_focus"`
	LastRun           *string  `json:"last_run"`
	NextRun           string   `json:"next_run"`
	Running           bool     `json:"running"`
	TimeUntilNextRun  *string  `json:"time_until_next_run"`
}

// humanizeDuration renders a duration the way an operator reads it:
// "2h 5m", "45s", or "Due now" once the deadline has passed.
func humanizeDuration(d time.Duration) string {
	if d <= 0 {
		return "Due now"
	}
	// A positive sub-second remainder rounds up, never down to a zero
	// countdown that is not due yet.
	if d < time.Second {
		return "1s"
	}

	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

package agents

import (
	"slices"
	"time"
)

// IsAvailable reports whether an agent may take a session at the given
// instant. Pure function of the config and the instant.
//
// Inactive agents are never available. When working hours are enabled
// the instant is converted into the configured zone; the local weekday
// must be in the work-day set and the local clock must satisfy
// start <= now < end. Windows do not wrap past midnight (see Validate).
func IsAvailable(config Config, now time.Time) bool {
	if !config.IsActive {
		return false
	}
	if !config.WorkingHours.Enabled {
		return true
	}

	location, err := time.LoadLocation(config.WorkingHours.Timezone)
	if err != nil {
		// Unresolvable zone means the window cannot be evaluated;
		// treat the agent as unavailable rather than guessing.
		return false
	}
	local := now.In(location)

	if !slices.Contains(config.WorkingHours.WorkDays, local.Weekday()) {
		return false
	}

	start, err := parseMinuteOfDay(config.WorkingHours.Start)
	if err != nil {
		return false
	}
	end, err := parseMinuteOfDay(config.WorkingHours.End)
	if err != nil {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	return minute >= start && minute < end
}

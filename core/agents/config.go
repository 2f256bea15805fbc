// Package agents models the configuration a company attaches to a voice
// agent and decides, for a given instant, whether the agent may take a
// session at all.
package agents

import (
	"fmt"
	"time"

	"github.com/jinzhu/copier"
)

// Config is everything the orchestrator needs to know about an agent. A
// session reads exactly one Snapshot taken at start; the stored config
// may change underneath it without affecting a running session.
type Config struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Voice        VoiceParams  `json:"voice"`
	AI           AIParams     `json:"ai"`
	WorkingHours WorkingHours `json:"workingHours"`

	Greeting string `json:"greeting"`
	Fallback string `json:"fallback"`
	Ending   string `json:"ending"`

	IsActive bool `json:"isActive"`
}

type VoiceParams struct {
	Name         string  `json:"voiceName"`
	Language     string  `json:"language"`
	SpeakingRate float64 `json:"speakingRate" jsonschema:"minimum=0.5,maximum=2"`
	Pitch        float64 `json:"pitch" jsonschema:"minimum=-20,maximum=20"`
}

type AIParams struct {
	Model        string  `json:"model"`
	SystemPrompt string  `json:"systemPrompt"`
	Temperature  float64 `json:"temperature" jsonschema:"minimum=0,maximum=1"`
	MaxTokens    int     `json:"maxTokens"`
}

// WorkingHours is a local time-of-day window plus a weekday set,
// evaluated in the configured zone. Windows never wrap past midnight:
// End must be at or after Start.
type WorkingHours struct {
	Enabled  bool           `json:"enabled"`
	Timezone string         `json:"timezone"`
	Start    string         `json:"start" jsonschema:"pattern=^([01][0-9]|2[0-3]):[0-5][0-9]$"`
	End      string         `json:"end" jsonschema:"pattern=^([01][0-9]|2[0-3]):[0-5][0-9]$"`
	WorkDays []time.Weekday `json:"workDays"`
}

// Snapshot deep-copies the config so a session's view stays immutable
// while the stored record keeps being edited in the dashboard.
func (c Config) Snapshot() Config {
	snapshot := Config{}
	if err := copier.CopyWithOption(&snapshot, &c, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails on type mismatches, which cannot happen for
		// a copy onto the same type. Fall back to the shallow value.
		return c
	}
	return snapshot
}

// Validate rejects configs the orchestrator must not run with.
func (c Config) Validate() error {
	if c.Voice.SpeakingRate < 0.5 || c.Voice.SpeakingRate > 2.0 {
		return fmt.Errorf("speaking rate %.2f outside [0.5, 2.0]", c.Voice.SpeakingRate)
	}
	if c.Voice.Pitch < -20 || c.Voice.Pitch > 20 {
		return fmt.Errorf("pitch %.2f outside [-20, 20]", c.Voice.Pitch)
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
		return fmt.Errorf("temperature %.2f outside [0, 1]", c.AI.Temperature)
	}
	if c.AI.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative")
	}

	if !c.WorkingHours.Enabled {
		return nil
	}

	if _, err := time.LoadLocation(c.WorkingHours.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.WorkingHours.Timezone, err)
	}
	start, err := parseMinuteOfDay(c.WorkingHours.Start)
	if err != nil {
		return fmt.Errorf("invalid working-hours start: %w", err)
	}
	end, err := parseMinuteOfDay(c.WorkingHours.End)
	if err != nil {
		return fmt.Errorf("invalid working-hours end: %w", err)
	}
	if end < start {
		return fmt.Errorf("working-hours window %s-%s wraps past midnight", c.WorkingHours.Start, c.WorkingHours.End)
	}
	for _, day := range c.WorkingHours.WorkDays {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("invalid weekday index %d", day)
		}
	}

	return nil
}

func parseMinuteOfDay(clock string) (int, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", clock)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

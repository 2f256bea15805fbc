package agents

import (
	"testing"
	"time"
)

func almatyConfig() Config {
	return Config{
		ID:       "agent-1",
		IsActive: true,
		Voice:    VoiceParams{Name: "aura-asteria-en", Language: "ru", SpeakingRate: 1.0},
		AI:       AIParams{Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 256},
		WorkingHours: WorkingHours{
			Enabled:  true,
			Timezone: "Asia/Almaty",
			Start:    "09:00",
			End:      "18:00",
			WorkDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		},
	}
}

func almatyTime(t *testing.T, value string) time.Time {
	t.Helper()
	location, err := time.LoadLocation("Asia/Almaty")
	if err != nil {
		t.Fatalf("failed to load zone: %v", err)
	}
	parsed, err := time.ParseInLocation("2006-01-02 15:04", value, location)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", value, err)
	}
	return parsed
}

func TestIsAvailableInsideWindow(t *testing.T) {
	// 2026-08-24 is a Monday.
	if !IsAvailable(almatyConfig(), almatyTime(t, "2026-08-24 10:00")) {
		t.Fatal("expected agent available Monday 10:00 local")
	}
}

func TestIsAvailableOutsideWorkDays(t *testing.T) {
	// 2026-08-29 is a Saturday.
	if IsAvailable(almatyConfig(), almatyTime(t, "2026-08-29 10:00")) {
		t.Fatal("expected agent unavailable Saturday 10:00 local")
	}
}

func TestIsAvailableAfterHours(t *testing.T) {
	if IsAvailable(almatyConfig(), almatyTime(t, "2026-08-24 19:00")) {
		t.Fatal("expected agent unavailable Monday 19:00 local")
	}
}

func TestIsAvailableWindowEndIsExclusive(t *testing.T) {
	if IsAvailable(almatyConfig(), almatyTime(t, "2026-08-24 18:00")) {
		t.Fatal("expected window end to be exclusive")
	}
	if !IsAvailable(almatyConfig(), almatyTime(t, "2026-08-24 09:00")) {
		t.Fatal("expected window start to be inclusive")
	}
}

func TestInactiveAgentIsNeverAvailable(t *testing.T) {
	config := almatyConfig()
	config.IsActive = false
	if IsAvailable(config, almatyTime(t, "2026-08-24 10:00")) {
		t.Fatal("expected inactive agent to be unavailable regardless of hours")
	}
}

func TestDisabledHoursAlwaysAvailableWhileActive(t *testing.T) {
	config := almatyConfig()
	config.WorkingHours.Enabled = false
	if !IsAvailable(config, almatyTime(t, "2026-08-29 03:00")) {
		t.Fatal("expected active agent with disabled hours to be available")
	}
}

func TestIsAvailableConvertsInstantIntoConfiguredZone(t *testing.T) {
	// Monday 04:30 UTC is Monday 10:30 in Almaty (+6).
	utc := time.Date(2026, 8, 24, 4, 30, 0, 0, time.UTC)
	if !IsAvailable(almatyConfig(), utc) {
		t.Fatal("expected UTC instant to be evaluated in Asia/Almaty")
	}
}

func TestValidateRejectsWrappingWindow(t *testing.T) {
	config := almatyConfig()
	config.WorkingHours.Start = "22:00"
	config.WorkingHours.End = "06:00"
	if err := config.Validate(); err == nil {
		t.Fatal("expected wrap-past-midnight window to be rejected")
	}
}

func TestValidateRejectsOutOfRangeParams(t *testing.T) {
	cases := map[string]func(*Config){
		"speaking rate": func(c *Config) { c.Voice.SpeakingRate = 2.5 },
		"pitch":         func(c *Config) { c.Voice.Pitch = -30 },
		"temperature":   func(c *Config) { c.AI.Temperature = 1.5 },
		"timezone":      func(c *Config) { c.WorkingHours.Timezone = "Mars/Olympus" },
		"start clock":   func(c *Config) { c.WorkingHours.Start = "9am" },
	}
	for name, mutate := range cases {
		config := almatyConfig()
		mutate(&config)
		if err := config.Validate(); err == nil {
			t.Fatalf("expected %s to fail validation", name)
		}
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	config := almatyConfig()
	snapshot := config.Snapshot()

	config.WorkingHours.WorkDays[0] = time.Sunday
	config.Greeting = "changed"

	if snapshot.WorkingHours.WorkDays[0] != time.Monday {
		t.Fatal("expected snapshot work days to be deep-copied")
	}
	if snapshot.Greeting == "changed" {
		t.Fatal("expected snapshot to be detached from the source config")
	}
}

// Package sqlite persists agent configurations behind a gorm-managed
// sqlite database. The dashboard writes here; the orchestrator only ever
// reads one config snapshot per session.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"gorm.io/gorm"

	"github.com/saylem-ai/saylem-core/core/agents"
)

var logger = otelslog.NewLogger("saylem-core/agents/sqlite")

// ErrNotFound is returned by Load when no agent exists under the id.
var ErrNotFound = errors.New("agent not found")

type Store struct {
	db *gorm.DB
}

// Open connects to (and migrates) the agent database at path. Use
// ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open agent database: %w", err)
	}
	if err := db.AutoMigrate(&agentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate agent schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Load fetches a single agent configuration.
func (s *Store) Load(ctx context.Context, agentID string) (*agents.Config, error) {
	var record agentRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load agent %s: %w", agentID, err)
	}

	config, err := record.toConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to decode agent %s: %w", agentID, err)
	}
	return config, nil
}

// Save validates and upserts a configuration, assigning an id to new
// agents. Returns the stored config.
func (s *Store) Save(ctx context.Context, config agents.Config) (*agents.Config, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to store invalid agent config: %w", err)
	}
	if config.ID == "" {
		config.ID = uuid.NewString()
	}

	record, err := fromConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode agent config: %w", err)
	}
	if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
		return nil, fmt.Errorf("failed to store agent %s: %w", config.ID, err)
	}

	logger.InfoContext(ctx, "stored agent config", "agent_id", config.ID)
	return &config, nil
}

// List returns all stored agent configurations, most recently updated
// first.
func (s *Store) List(ctx context.Context) ([]agents.Config, error) {
	var records []agentRecord
	if err := s.db.WithContext(ctx).Order("updated_at desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	configs := make([]agents.Config, 0, len(records))
	for _, record := range records {
		config, err := record.toConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to decode agent %s: %w", record.ID, err)
		}
		configs = append(configs, *config)
	}
	return configs, nil
}

// Delete removes an agent configuration.
func (s *Store) Delete(ctx context.Context, agentID string) error {
	result := s.db.WithContext(ctx).Delete(&agentRecord{}, "id = ?", agentID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete agent %s: %w", agentID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type agentRecord struct {
	ID   string `gorm:"primaryKey"`
	Name string

	VoiceName    string
	Language     string
	SpeakingRate float64
	Pitch        float64

	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	HoursEnabled  bool
	HoursTimezone string
	HoursStart    string
	HoursEnd      string
	WorkDaysJSON  string

	Greeting string
	Fallback string
	Ending   string

	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (agentRecord) TableName() string { return "agents" }

func fromConfig(config agents.Config) (*agentRecord, error) {
	workDays, err := json.Marshal(config.WorkingHours.WorkDays)
	if err != nil {
		return nil, err
	}
	return &agentRecord{
		ID:            config.ID,
		Name:          config.Name,
		VoiceName:     config.Voice.Name,
		Language:      config.Voice.Language,
		SpeakingRate:  config.Voice.SpeakingRate,
		Pitch:         config.Voice.Pitch,
		Model:         config.AI.Model,
		SystemPrompt:  config.AI.SystemPrompt,
		Temperature:   config.AI.Temperature,
		MaxTokens:     config.AI.MaxTokens,
		HoursEnabled:  config.WorkingHours.Enabled,
		HoursTimezone: config.WorkingHours.Timezone,
		HoursStart:    config.WorkingHours.Start,
		HoursEnd:      config.WorkingHours.End,
		WorkDaysJSON:  string(workDays),
		Greeting:      config.Greeting,
		Fallback:      config.Fallback,
		Ending:        config.Ending,
		IsActive:      config.IsActive,
	}, nil
}

func (r agentRecord) toConfig() (*agents.Config, error) {
	var workDays []time.Weekday
	if r.WorkDaysJSON != "" {
		if err := json.Unmarshal([]byte(r.WorkDaysJSON), &workDays); err != nil {
			return nil, err
		}
	}
	return &agents.Config{
		ID:   r.ID,
		Name: r.Name,
		Voice: agents.VoiceParams{
			Name:         r.VoiceName,
			Language:     r.Language,
			SpeakingRate: r.SpeakingRate,
			Pitch:        r.Pitch,
		},
		AI: agents.AIParams{
			Model:        r.Model,
			SystemPrompt: r.SystemPrompt,
			Temperature:  r.Temperature,
			MaxTokens:    r.MaxTokens,
		},
		WorkingHours: agents.WorkingHours{
			Enabled:  r.HoursEnabled,
			Timezone: r.HoursTimezone,
			Start:    r.HoursStart,
			End:      r.HoursEnd,
			WorkDays: workDays,
		},
		Greeting: r.Greeting,
		Fallback: r.Fallback,
		Ending:   r.Ending,
		IsActive: r.IsActive,
	}, nil
}

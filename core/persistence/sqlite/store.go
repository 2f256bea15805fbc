// Package sqlite stores finalized test conversations. Saves upsert by
// session id, so retrying a failed save never duplicates a session.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saylem-ai/saylem-core/core/conversations"
)

var logger = otelslog.NewLogger("saylem-core/persistence/sqlite")

type Store struct {
	db *gorm.DB
}

// Open connects to (and migrates) the conversation database at path.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation database: %w", err)
	}
	if err := db.AutoMigrate(&conversationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate conversation schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveConversation upserts a finalized session and returns the stored
// record id (the session id).
func (s *Store) SaveConversation(ctx context.Context, record conversations.Record) (string, error) {
	if record.SessionID == "" {
		return "", fmt.Errorf("conversation record has no session id")
	}

	turns, err := json.Marshal(record.Turns)
	if err != nil {
		return "", fmt.Errorf("failed to encode turns: %w", err)
	}

	row := conversationRecord{
		SessionID: record.SessionID,
		AgentID:   record.AgentID,
		ActorID:   record.ActorID,
		StartedAt: record.StartedAt,
		EndedAt:   record.EndedAt,
		TurnCount: len(record.Turns),
		TurnsJSON: string(turns),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to store conversation %s: %w", record.SessionID, err)
	}

	logger.InfoContext(ctx, "stored conversation",
		"session_id", record.SessionID,
		"agent_id", record.AgentID,
		"turns", len(record.Turns),
	)
	return record.SessionID, nil
}

// LoadConversation fetches a stored session by id.
func (s *Store) LoadConversation(ctx context.Context, sessionID string) (*conversations.Record, error) {
	var row conversationRecord
	if err := s.db.WithContext(ctx).First(&row, "session_id = ?", sessionID).Error; err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", sessionID, err)
	}

	var turns []conversations.Turn
	if err := json.Unmarshal([]byte(row.TurnsJSON), &turns); err != nil {
		return nil, fmt.Errorf("failed to decode turns for %s: %w", sessionID, err)
	}
	return &conversations.Record{
		SessionID: row.SessionID,
		AgentID:   row.AgentID,
		ActorID:   row.ActorID,
		StartedAt: row.StartedAt,
		EndedAt:   row.EndedAt,
		Turns:     turns,
	}, nil
}

// ListByAgent returns stored sessions for one agent, newest first.
func (s *Store) ListByAgent(ctx context.Context, agentID string) ([]conversations.Record, error) {
	var rows []conversationRecord
	if err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("started_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations for agent %s: %w", agentID, err)
	}

	records := make([]conversations.Record, 0, len(rows))
	for _, row := range rows {
		var turns []conversations.Turn
		if err := json.Unmarshal([]byte(row.TurnsJSON), &turns); err != nil {
			return nil, fmt.Errorf("failed to decode turns for %s: %w", row.SessionID, err)
		}
		records = append(records, conversations.Record{
			SessionID: row.SessionID,
			AgentID:   row.AgentID,
			ActorID:   row.ActorID,
			StartedAt: row.StartedAt,
			EndedAt:   row.EndedAt,
			Turns:     turns,
		})
	}
	return records, nil
}

type conversationRecord struct {
	SessionID string `gorm:"primaryKey;column:session_id"`
	AgentID   string `gorm:"index"`
	ActorID   string
	StartedAt time.Time
	EndedAt   time.Time
	TurnCount int
	TurnsJSON string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (conversationRecord) TableName() string { return "conversations" }

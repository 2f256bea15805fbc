package orchestration

import (
	"time"

	"github.com/google/uuid"
)

// Session identifies one continuous test conversation between a user
// and an agent configuration. EndedAt stays zero until termination.
type Session struct {
	ID        string
	AgentID   string
	StartedAt time.Time
	EndedAt   time.Time
}

func newSession(agentID string) Session {
	return Session{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		StartedAt: time.Now(),
	}
}

// Package conversations holds the ordered history of a voice session:
// who said what, when, and in which order. The ledger is deliberately
// dumb storage; role alternation and turn gating live in the
// orchestrator.
package conversations

import (
	"sync"
	"time"
)

type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// Turn is a single contribution to a conversation. Immutable once created.
type Turn struct {
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn stamps a turn with the current time.
func NewTurn(role TurnRole, content string) Turn {
	return Turn{Role: role, Content: content, Timestamp: time.Now()}
}

// Ledger is an append-only, totally ordered sequence of turns. No
// deletions, no reordering; Reset is the only operation that discards
// history and it reinitializes to a single greeting turn.
type Ledger struct {
	mu    sync.Mutex
	turns []Turn
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds a turn after all existing turns.
func (l *Ledger) Append(turn Turn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turn)
}

// Turns returns a copy of the stored turns, oldest first. The copy is
// safe to hand to LLM context builders while the session keeps running.
func (l *Ledger) Turns() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len reports the number of stored turns.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Last returns the most recent turn, or nil when the ledger is empty.
func (l *Ledger) Last() *Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.turns) == 0 {
		return nil
	}
	turn := l.turns[len(l.turns)-1]
	return &turn
}

// Values iterates over the stored turns from earliest to latest.
func (l *Ledger) Values(yield func(Turn) bool) {
	for _, turn := range l.Turns() {
		if !yield(turn) {
			return
		}
	}
}

// Reset discards the history and reinitializes the ledger to a single
// greeting turn. Used when a user throws away a test run and starts over.
func (l *Ledger) Reset(greeting string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = []Turn{NewTurn(TurnRoleAssistant, greeting)}
}

// Finalize snapshots the ledger into an immutable ordered sequence for
// the persistence collaborator. The ledger itself stays usable; saving
// is not a mutation.
func (l *Ledger) Finalize() []Turn {
	return l.Turns()
}

// Record is a finalized session handed to the persistence collaborator.
type Record struct {
	SessionID string    `json:"sessionId"`
	AgentID   string    `json:"agentId"`
	ActorID   string    `json:"actorId"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Turns     []Turn    `json:"turns"`
}

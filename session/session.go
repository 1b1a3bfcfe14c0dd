// Package session defines the session store contract (C9): an append-only
// run history keyed by session id, with pluggable backends. The core
// depends only on the Store interface; concrete backends (in-memory,
// redis, mongo) each satisfy it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/agentkit-go/agentkit/llmclient"
)

// RunRecord is one immutable entry in a session's append-only run log.
type RunRecord struct {
	RunID     string
	Task      string
	Response  string
	Success   bool
	Steps     int
	Timestamp time.Time
	Metadata  map[string]any
}

// Session is the durable conversational container: a user's ordered
// history of runs against one agent.
type Session struct {
	SessionID  string
	UserID     string
	AgentName  string
	CreatedAt  time.Time
	LastActive time.Time
	Runs       []RunRecord
}

var (
	// ErrSessionNotFound indicates GetSession found no session under the id.
	ErrSessionNotFound = errors.New("session: not found")
)

// Store persists sessions and their run history. AddRun must be atomic
// with respect to concurrent writers on the same session id: two
// concurrent AddRun calls for the same session must not lose a record.
type Store interface {
	// GetSession loads a session. Returns ErrSessionNotFound when absent.
	GetSession(ctx context.Context, sessionID string) (Session, error)
	// SaveSession creates or replaces a session wholesale.
	SaveSession(ctx context.Context, s Session) error
	// AddRun appends one run record to sessionID's history and bumps
	// LastActive, creating the session if it does not already exist.
	AddRun(ctx context.Context, sessionID string, run RunRecord) error
	// ListSessions returns every known session id. Order is unspecified.
	ListSessions(ctx context.Context) ([]string, error)
	// CleanupExpired deletes sessions whose LastActive is older than
	// maxAge and returns how many were removed.
	CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error)
}

// HistoryMessages flattens the last n runs of s into (user, assistant)
// message pairs, in chronological order, for prepending after the system
// prompt of a subsequent run. n <= 0 returns no messages.
func HistoryMessages(s Session, n int) []llmclient.Message {
	if n <= 0 || len(s.Runs) == 0 {
		return nil
	}
	runs := s.Runs
	if len(runs) > n {
		runs = runs[len(runs)-n:]
	}
	out := make([]llmclient.Message, 0, len(runs)*2)
	for _, r := range runs {
		out = append(out, llmclient.User(r.Task), llmclient.Assistant(r.Response))
	}
	return out
}

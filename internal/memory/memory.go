// Package memory keeps bounded, in-process conversation history per session.
//
// Each session holds at most maxTurns turns; older turns are evicted
// strictly first-in-first-out. Sessions are fully isolated: one session's
// history never leaks into another's context.
package memory

import (
	"strings"
	"sync"
	"time"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Assistant turns record the sources
// their answer cited.
type Turn struct {
	Role    Role
	Content string
	Sources []string
	At      time.Time
}

// DefaultMaxTurns bounds a session when no limit is configured.
const DefaultMaxTurns = 50

// Store is a mutex-guarded collection of per-session turn buffers, safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string][]Turn
	maxTurns int
}

// New creates a Store holding at most maxTurns turns per session.
func New(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		sessions: make(map[string][]Turn),
		maxTurns: maxTurns,
	}
}

// Append records a turn, evicting the oldest when the session is full.
func (s *Store) Append(sessionID string, role Role, content string, sources ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.sessions[sessionID], Turn{Role: role, Content: content, Sources: sources, At: time.Now()})
	if overflow := len(turns) - s.maxTurns; overflow > 0 {
		turns = turns[overflow:]
	}
	s.sessions[sessionID] = turns
}

// Context returns a copy of the session's most recent turns, oldest first.
// window <= 0 returns everything retained.
func (s *Store) Context(sessionID string, window int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.sessions[sessionID]
	if window > 0 && len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Len reports how many turns the session currently retains.
func (s *Store) Len(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[sessionID])
}

// Clear drops the session's entire history.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// FormatDialogue renders turns as alternating labeled lines for prompt
// inclusion.
func FormatDialogue(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch t.Role {
		case RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}

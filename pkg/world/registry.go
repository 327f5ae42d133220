package world

import (
	"sync"

	"github.com/gridrace/race-service-go/pkg/model"
)

// Session is the in-memory state of one connected player.
type Session struct {
	PlayerID string

	mu      sync.RWMutex
	history []*model.Location
	race    *model.Race
}

// OngoingRace returns the player's ongoing race or nil.
func (s *Session) OngoingRace() *model.Race {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.race != nil && s.race.Ongoing() {
		return s.race
	}
	return nil
}

// SetRace installs the player's current race, replacing any previous one.
func (s *Session) SetRace(r *model.Race) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.race = r
}

// ClearRace drops the race reference when it matches r. A stale clear from
// a superseded race must not remove the successor.
func (s *Session) ClearRace(r *model.Race) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.race == r {
		s.race = nil
	}
}

// Registry tracks the sessions of connected players.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Session returns the player's session, creating it on first use.
func (r *Registry) Session(playerID string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[playerID]
	r.mu.RUnlock()
	if ok {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[playerID]; ok {
		return s
	}
	s = &Session{PlayerID: playerID}
	r.sessions[playerID] = s
	return s
}

// Remove drops a player's session, e.g. on disconnect.
func (r *Registry) Remove(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, playerID)
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

package syncer

import (
	"sync"

	"github.com/yourname/focustracker/internal"
)

// projection is the coordinator's in-memory view of sessions and stats.
// It is a cache over the authoritative datastore, never the other way
// around.
type projection struct {
	mu        sync.RWMutex
	sessions  map[string]internal.PomodoroSession // session id -> copy
	userStats map[string]internal.UserStats       // user id -> copy
}

func newProjection() *projection {
	return &projection{
		sessions:  make(map[string]internal.PomodoroSession),
		userStats: make(map[string]internal.UserStats),
	}
}

func (p *projection) putSession(s *internal.PomodoroSession) *internal.PomodoroSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	var old *internal.PomodoroSession
	if prev, ok := p.sessions[s.ID]; ok {
		cp := prev
		old = &cp
	}
	p.sessions[s.ID] = *s
	return old
}

func (p *projection) session(id string) (*internal.PomodoroSession, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[id]
	if !ok {
		return nil, false
	}
	cp := s
	return &cp, true
}

func (p *projection) putStats(st *internal.UserStats) *internal.UserStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	var old *internal.UserStats
	if prev, ok := p.userStats[st.UserID]; ok {
		cp := prev
		old = &cp
	}
	p.userStats[st.UserID] = *st
	return old
}

func (p *projection) stats(userID string) (*internal.UserStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st, ok := p.userStats[userID]
	if !ok {
		return nil, false
	}
	cp := st
	return &cp, true
}

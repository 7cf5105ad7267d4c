package realtime

import (
	"sort"
	"sync"
	"time"
)

// PresenceTracker remembers when each user was last seen on a realtime
// connection. A user counts as online until ttl passes without a touch.
type PresenceTracker struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewPresenceTracker(ttl time.Duration) *PresenceTracker {
	return &PresenceTracker{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (p *PresenceTracker) Touch(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[userID] = p.now()
}

func (p *PresenceTracker) Leave(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.seen, userID)
}

// Online returns the sorted ids of users seen within the ttl, pruning the
// rest.
func (p *PresenceTracker) Online() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-p.ttl)
	out := make([]string, 0, len(p.seen))
	for id, at := range p.seen {
		if at.Before(cutoff) {
			delete(p.seen, id)
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

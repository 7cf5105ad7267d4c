package realtime

import (
	"sync"

	"github.com/yourname/focustracker/internal"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const (
	TableSessions = "sessions"
	TableStats    = "stats"
	TableMeetings = "meetings"
)

// Event is one change-feed record: what happened, to which table, with the
// row before and after.
type Event struct {
	Type   EventType   `json:"event"`
	Table  string      `json:"table"`
	UserID string      `json:"user_id"`
	Old    interface{} `json:"old,omitempty"`
	New    interface{} `json:"new,omitempty"`
}

type subscriber struct {
	ch     chan Event
	tables map[string]bool // empty means all tables
}

// Hub is the in-process change feed. Delivery is at-least-once from the
// caller's point of view; a subscriber that falls behind its buffer loses
// events and is expected to refresh from the authoritative store.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	logger internal.Logger
}

func NewHub(logger internal.Logger) *Hub {
	return &Hub{subs: make(map[int]*subscriber), logger: logger}
}

// Subscribe registers interest in the given tables (none means all) and
// returns the event channel plus a cancel func. Cancel is idempotent.
func (h *Hub) Subscribe(buf int, tables ...string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	sub := &subscriber{ch: make(chan Event, buf), tables: make(map[string]bool, len(tables))}
	for _, t := range tables {
		sub.tables[t] = true
	}
	h.subs[id] = sub
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish fans the event out without blocking; slow subscribers drop.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if len(sub.tables) > 0 && !sub.tables[ev.Table] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warnf("realtime: dropping %s/%s event for slow subscriber", ev.Table, ev.Type)
		}
	}
}

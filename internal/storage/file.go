package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/yourname/focustracker/internal"
)

// FileStore is the development/test backend: everything in memory, guarded
// by one RWMutex, persisted to JSON files by debounced save workers. Holding
// the mutex across the conditional transitions is what makes them atomic,
// which is the whole point of CompleteIfActive and friends.
type FileStore struct {
	mu           sync.RWMutex
	users        map[string]*internal.User // id -> user
	byUsername   map[string]string         // username -> id
	sessions     map[string]*internal.PomodoroSession
	userSessions map[string][]*internal.PomodoroSession // userID -> sessions, StartTime descending
	stats        map[string]*internal.UserStats
	prefs        map[string]*internal.UserPreferences
	meetings     map[string]*internal.Meeting
	authSessions map[string]*internal.AuthSession // token -> auth session

	dir       string
	logger    internal.Logger
	saveChans map[string]chan struct{}
	shutdown  chan struct{}
	saveDelay time.Duration
}

var fileTables = []string{"users", "sessions", "stats", "preferences", "meetings", "auth_sessions"}

// NewFileStore loads existing JSON files from dir (creating it if needed)
// and starts one save worker per table.
func NewFileStore(dir string, logger internal.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: failed to create data dir: %w", err)
	}
	s := &FileStore{
		users:        make(map[string]*internal.User),
		byUsername:   make(map[string]string),
		sessions:     make(map[string]*internal.PomodoroSession),
		userSessions: make(map[string][]*internal.PomodoroSession),
		stats:        make(map[string]*internal.UserStats),
		prefs:        make(map[string]*internal.UserPreferences),
		meetings:     make(map[string]*internal.Meeting),
		authSessions: make(map[string]*internal.AuthSession),
		dir:          dir,
		logger:       logger,
		saveChans:    make(map[string]chan struct{}, len(fileTables)),
		shutdown:     make(chan struct{}),
		saveDelay:    500 * time.Millisecond,
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	for _, table := range fileTables {
		ch := make(chan struct{}, 1)
		s.saveChans[table] = ch
		go s.saveWorker(table, ch)
	}
	return s, nil
}

func (s *FileStore) path(table string) string {
	return filepath.Join(s.dir, table+".json")
}

func ReadJSONFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var out []T
	if err := json.NewDecoder(f).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (s *FileStore) loadAll() error {
	users, err := ReadJSONFile[*internal.User](s.path("users"))
	if err != nil {
		return fmt.Errorf("storage: failed to load users: %w", err)
	}
	sessions, err := ReadJSONFile[*internal.PomodoroSession](s.path("sessions"))
	if err != nil {
		return fmt.Errorf("storage: failed to load sessions: %w", err)
	}
	stats, err := ReadJSONFile[*internal.UserStats](s.path("stats"))
	if err != nil {
		return fmt.Errorf("storage: failed to load stats: %w", err)
	}
	prefs, err := ReadJSONFile[*internal.UserPreferences](s.path("preferences"))
	if err != nil {
		return fmt.Errorf("storage: failed to load preferences: %w", err)
	}
	meetings, err := ReadJSONFile[*internal.Meeting](s.path("meetings"))
	if err != nil {
		return fmt.Errorf("storage: failed to load meetings: %w", err)
	}
	auths, err := ReadJSONFile[*internal.AuthSession](s.path("auth_sessions"))
	if err != nil {
		return fmt.Errorf("storage: failed to load auth sessions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[u.ID] = u
		s.byUsername[u.Username] = u.ID
	}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
		s.userSessions[sess.UserID] = append(s.userSessions[sess.UserID], sess)
	}
	for userID := range s.userSessions {
		list := s.userSessions[userID]
		sort.Slice(list, func(i, j int) bool {
			return list[i].StartTime.After(list[j].StartTime)
		})
	}
	for _, st := range stats {
		s.stats[st.UserID] = st
	}
	for _, p := range prefs {
		s.prefs[p.UserID] = p
	}
	for _, m := range meetings {
		s.meetings[m.ID] = m
	}
	for _, a := range auths {
		s.authSessions[a.Token] = a
	}
	return nil
}

func AtomicWriteJSON(filePath string, data interface{}) error {
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}
	return os.Rename(tempFile, filePath)
}

func (s *FileStore) snapshot(table string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch table {
	case "users":
		out := make([]*internal.User, 0, len(s.users))
		for _, u := range s.users {
			out = append(out, u)
		}
		return out
	case "sessions":
		out := make([]*internal.PomodoroSession, 0, len(s.sessions))
		for _, v := range s.sessions {
			out = append(out, v)
		}
		return out
	case "stats":
		out := make([]*internal.UserStats, 0, len(s.stats))
		for _, v := range s.stats {
			out = append(out, v)
		}
		return out
	case "preferences":
		out := make([]*internal.UserPreferences, 0, len(s.prefs))
		for _, v := range s.prefs {
			out = append(out, v)
		}
		return out
	case "meetings":
		out := make([]*internal.Meeting, 0, len(s.meetings))
		for _, v := range s.meetings {
			out = append(out, v)
		}
		return out
	case "auth_sessions":
		out := make([]*internal.AuthSession, 0, len(s.authSessions))
		for _, v := range s.authSessions {
			out = append(out, v)
		}
		return out
	}
	return nil
}

// saveWorker batches writes to avoid hitting disk on every mutation.
func (s *FileStore) saveWorker(table string, ch chan struct{}) {
	timer := time.NewTimer(s.saveDelay)
	defer timer.Stop()
	for {
		select {
		case <-ch:
			timer.Reset(s.saveDelay)
		case <-timer.C:
			if err := AtomicWriteJSON(s.path(table), s.snapshot(table)); err != nil {
				s.logger.Errorf("storage: error saving %s: %v", table, err)
			}
		case <-s.shutdown:
			return
		}
	}
}

func (s *FileStore) markDirty(table string) {
	select {
	case s.saveChans[table] <- struct{}{}:
	default:
	}
}

// --- SessionRepository ---

func (s *FileStore) SaveSession(_ context.Context, sess *internal.PomodoroSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.Status == internal.StatusActive {
		for _, existing := range s.userSessions[sess.UserID] {
			if existing.ID != sess.ID && existing.Status == internal.StatusActive {
				return internal.ErrActiveConflict
			}
		}
	}
	cp := *sess
	if _, ok := s.sessions[cp.ID]; ok {
		// Re-save of an existing id is an in-place replace; the index entry
		// must not be duplicated.
		s.sessions[cp.ID] = &cp
		list := s.userSessions[cp.UserID]
		for i, existing := range list {
			if existing.ID == cp.ID {
				list[i] = &cp
				break
			}
		}
	} else {
		s.sessions[cp.ID] = &cp
		s.insertIndexedLocked(&cp)
	}
	s.markDirty("sessions")
	return nil
}

// insertIndexedLocked keeps the per-user index sorted by StartTime descending.
func (s *FileStore) insertIndexedLocked(sess *internal.PomodoroSession) {
	list := s.userSessions[sess.UserID]
	inserted := false
	for i, existing := range list {
		if existing.StartTime.Before(sess.StartTime) {
			list = append(list[:i], append([]*internal.PomodoroSession{sess}, list[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		list = append(list, sess)
	}
	s.userSessions[sess.UserID] = list
}

func (s *FileStore) UpdateSession(_ context.Context, sess *internal.PomodoroSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.sessions[sess.ID]
	if !ok {
		return internal.ErrNotFound
	}
	if sess.Status == internal.StatusActive {
		for _, existing := range s.userSessions[sess.UserID] {
			if existing.ID != sess.ID && existing.Status == internal.StatusActive {
				return internal.ErrActiveConflict
			}
		}
	}
	cp := *sess
	s.sessions[cp.ID] = &cp
	list := s.userSessions[old.UserID]
	for i, existing := range list {
		if existing.ID == cp.ID {
			list[i] = &cp
			break
		}
	}
	s.markDirty("sessions")
	return nil
}

func (s *FileStore) GetSession(_ context.Context, id string) (*internal.PomodoroSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *FileStore) ListSessions(_ context.Context, userID string) ([]internal.PomodoroSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.userSessions[userID]
	if !ok {
		return []internal.PomodoroSession{}, nil
	}
	out := make([]internal.PomodoroSession, len(list))
	for i, sess := range list {
		out[i] = *sess
	}
	return out, nil
}

func (s *FileStore) ActiveSession(_ context.Context, userID string, now time.Time) (*internal.PomodoroSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due *internal.PomodoroSession
	for _, sess := range s.userSessions[userID] {
		if sess.Status == internal.StatusActive {
			cp := *sess
			return &cp, nil
		}
		if sess.Status == internal.StatusScheduled && !sess.StartTime.After(now) {
			if due == nil || sess.StartTime.Before(due.StartTime) {
				due = sess
			}
		}
	}
	if due != nil {
		cp := *due
		return &cp, nil
	}
	return nil, nil
}

func (s *FileStore) StopActiveSessions(_ context.Context, userID string, at time.Time) ([]internal.PomodoroSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stopped []internal.PomodoroSession
	for _, sess := range s.userSessions[userID] {
		if sess.Status == internal.StatusActive || sess.Status == internal.StatusPaused {
			stoppedAt := at
			sess.Status = internal.StatusStopped
			sess.StoppedAt = &stoppedAt
			sess.UpdatedAt = at
			stopped = append(stopped, *sess)
		}
	}
	if len(stopped) > 0 {
		s.markDirty("sessions")
	}
	return stopped, nil
}

func (s *FileStore) CompleteIfActive(_ context.Context, id string, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != internal.StatusActive {
		return false, nil
	}
	at := completedAt
	sess.Status = internal.StatusCompleted
	sess.CompletedAt = &at
	sess.UpdatedAt = at
	s.markDirty("sessions")
	return true, nil
}

func (s *FileStore) PauseIfActive(_ context.Context, id string, pausedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != internal.StatusActive {
		return false, nil
	}
	at := pausedAt
	sess.Status = internal.StatusPaused
	sess.PausedAt = &at
	sess.UpdatedAt = at
	s.markDirty("sessions")
	return true, nil
}

func (s *FileStore) ResumeIfPaused(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != internal.StatusPaused || sess.PausedAt == nil {
		return false, nil
	}
	for _, other := range s.userSessions[sess.UserID] {
		if other.ID != id && other.Status == internal.StatusActive {
			return false, internal.ErrActiveConflict
		}
	}
	sess.EndTime = sess.EndTime.Add(at.Sub(*sess.PausedAt))
	sess.Status = internal.StatusActive
	sess.PausedAt = nil
	sess.UpdatedAt = at
	s.markDirty("sessions")
	return true, nil
}

func (s *FileStore) StopIfLive(_ context.Context, id string, stoppedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || (sess.Status != internal.StatusActive && sess.Status != internal.StatusPaused) {
		return false, nil
	}
	at := stoppedAt
	sess.Status = internal.StatusStopped
	sess.StoppedAt = &at
	sess.UpdatedAt = at
	s.markDirty("sessions")
	return true, nil
}

func (s *FileStore) ActivateIfScheduled(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != internal.StatusScheduled {
		return false, nil
	}
	for _, other := range s.userSessions[sess.UserID] {
		if other.ID != id && other.Status == internal.StatusActive {
			return false, nil
		}
	}
	sess.Status = internal.StatusActive
	sess.UpdatedAt = at
	s.markDirty("sessions")
	return true, nil
}

// --- StatsRepository ---

func (s *FileStore) SaveStats(_ context.Context, st *internal.UserStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.stats[cp.UserID] = &cp
	s.markDirty("stats")
	return nil
}

func (s *FileStore) GetStats(_ context.Context, userID string) (*internal.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[userID]
	if !ok {
		return nil, internal.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// --- PreferenceRepository ---

func (s *FileStore) SavePreferences(_ context.Context, p *internal.UserPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.prefs[cp.UserID] = &cp
	s.markDirty("preferences")
	return nil
}

func (s *FileStore) GetPreferences(_ context.Context, userID string) (*internal.UserPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[userID]
	if !ok {
		return nil, internal.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// --- MeetingRepository ---

func (s *FileStore) SaveMeeting(_ context.Context, m *internal.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.meetings[cp.ID] = &cp
	s.markDirty("meetings")
	return nil
}

func (s *FileStore) GetMeeting(_ context.Context, id string) (*internal.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *FileStore) ListMeetings(_ context.Context, userID string) ([]internal.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []internal.Meeting
	for _, m := range s.meetings {
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func (s *FileStore) DeleteMeeting(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok || m.UserID != userID {
		return false, nil
	}
	delete(s.meetings, id)
	s.markDirty("meetings")
	return true, nil
}

// --- UserRepository ---

func (s *FileStore) CreateUser(_ context.Context, u *internal.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byUsername[u.Username]; taken {
		return internal.ErrUsernameTaken
	}
	cp := *u
	s.users[cp.ID] = &cp
	s.byUsername[cp.Username] = cp.ID
	s.markDirty("users")
	return nil
}

func (s *FileStore) GetUser(_ context.Context, id string) (*internal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *FileStore) GetUserByUsername(_ context.Context, username string) (*internal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, internal.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

// --- AuthSessionRepository ---

func (s *FileStore) SaveAuthSession(_ context.Context, a *internal.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.authSessions[cp.Token] = &cp
	s.markDirty("auth_sessions")
	return nil
}

func (s *FileStore) GetAuthSession(_ context.Context, token string) (*internal.AuthSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authSessions[token]
	if !ok {
		return nil, internal.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *FileStore) DeleteAuthSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.authSessions, token)
	s.markDirty("auth_sessions")
	return nil
}

// Close stops the save workers and flushes pending data synchronously.
func (s *FileStore) Close() error {
	close(s.shutdown)
	for _, table := range fileTables {
		if err := AtomicWriteJSON(s.path(table), s.snapshot(table)); err != nil {
			return err
		}
	}
	return nil
}

var _ Store = (*FileStore)(nil)

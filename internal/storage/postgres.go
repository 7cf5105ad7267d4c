package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourname/focustracker/internal"
)

// PostgresStore is the production backend. The single-active-session
// invariant lives in the partial unique index on sessions; conditional
// transitions are plain guarded UPDATEs, so concurrency is the database's
// problem, as it should be.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger internal.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	title TEXT NOT NULL DEFAULT '',
	goal TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	duration_minutes INT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	completed_at TIMESTAMPTZ,
	stopped_at TIMESTAMPTZ,
	paused_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT end_after_start CHECK (end_time > start_time)
);
CREATE UNIQUE INDEX IF NOT EXISTS one_active_session_per_user
	ON sessions (user_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS sessions_by_user ON sessions (user_id, start_time DESC);
CREATE TABLE IF NOT EXISTS user_stats (
	user_id TEXT PRIMARY KEY REFERENCES users(id),
	total_sessions INT NOT NULL DEFAULT 0,
	completed_sessions INT NOT NULL DEFAULT 0,
	total_minutes INT NOT NULL DEFAULT 0,
	completed_minutes INT NOT NULL DEFAULT 0,
	completion_rate INT NOT NULL DEFAULT 0,
	average_session_length INT NOT NULL DEFAULT 0,
	streak_days INT NOT NULL DEFAULT 0,
	longest_streak INT NOT NULL DEFAULT 0,
	last_session_date TEXT NOT NULL DEFAULT '',
	aggregates JSONB NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS user_preferences (
	user_id TEXT PRIMARY KEY REFERENCES users(id),
	session_minutes INT NOT NULL,
	break_minutes INT NOT NULL,
	weekly_goal_minutes INT NOT NULL,
	theme TEXT NOT NULL,
	notifications_enabled BOOLEAN NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS meetings (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	start_time TIMESTAMPTZ NOT NULL,
	attendees TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS auth_sessions (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

func NewPostgresStore(dsn string, logger internal.Logger) (*PostgresStore, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		logger.Errorf("failed to ensure schema: %v", err)
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// aggregates is the JSONB shape for the four grouping maps.
type aggregates struct {
	ByDay      map[string]internal.StatsBucket `json:"by_day,omitempty"`
	ByMonth    map[string]internal.StatsBucket `json:"by_month,omitempty"`
	ByTag      map[string]internal.StatsBucket `json:"by_tag,omitempty"`
	ByLocation map[string]internal.StatsBucket `json:"by_location,omitempty"`
}

// --- SessionRepository ---

const sessionCols = `id, user_id, title, goal, tags, location, duration_minutes,
	start_time, end_time, status, completed_at, stopped_at, paused_at, created_at, updated_at`

func scanSession(row pgx.Row) (*internal.PomodoroSession, error) {
	var s internal.PomodoroSession
	err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Goal, &s.Tags, &s.Location,
		&s.DurationMinutes, &s.StartTime, &s.EndTime, &s.Status,
		&s.CompletedAt, &s.StoppedAt, &s.PausedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *PostgresStore) SaveSession(ctx context.Context, s *internal.PomodoroSession) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO sessions (`+sessionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		s.ID, s.UserID, s.Title, s.Goal, s.Tags, s.Location, s.DurationMinutes,
		s.StartTime, s.EndTime, s.Status, s.CompletedAt, s.StoppedAt, s.PausedAt,
		s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return internal.ErrActiveConflict
		}
		p.logger.Errorf("failed to insert session: %v", err)
		return err
	}
	return nil
}

func (p *PostgresStore) UpdateSession(ctx context.Context, s *internal.PomodoroSession) error {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET title=$2, goal=$3, tags=$4,
		location=$5, duration_minutes=$6, start_time=$7, end_time=$8, status=$9,
		completed_at=$10, stopped_at=$11, paused_at=$12, updated_at=$13 WHERE id=$1`,
		s.ID, s.Title, s.Goal, s.Tags, s.Location, s.DurationMinutes,
		s.StartTime, s.EndTime, s.Status, s.CompletedAt, s.StoppedAt, s.PausedAt, s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return internal.ErrActiveConflict
		}
		p.logger.Errorf("failed to update session: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return internal.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) GetSession(ctx context.Context, id string) (*internal.PomodoroSession, error) {
	s, err := scanSession(p.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.ErrNotFound
	}
	return s, err
}

func (p *PostgresStore) ListSessions(ctx context.Context, userID string) ([]internal.PomodoroSession, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+sessionCols+` FROM sessions
		WHERE user_id=$1 ORDER BY start_time DESC`, userID)
	if err != nil {
		p.logger.Errorf("failed to query sessions: %v", err)
		return nil, err
	}
	defer rows.Close()
	var out []internal.PomodoroSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			p.logger.Errorf("failed to scan session: %v", err)
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ActiveSession(ctx context.Context, userID string, now time.Time) (*internal.PomodoroSession, error) {
	s, err := scanSession(p.pool.QueryRow(ctx, `SELECT `+sessionCols+` FROM sessions
		WHERE user_id=$1 AND (status='active' OR (status='scheduled' AND start_time<=$2))
		ORDER BY (status='active') DESC, start_time ASC LIMIT 1`, userID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (p *PostgresStore) StopActiveSessions(ctx context.Context, userID string, at time.Time) ([]internal.PomodoroSession, error) {
	rows, err := p.pool.Query(ctx, `UPDATE sessions SET status='stopped', stopped_at=$2, updated_at=$2
		WHERE user_id=$1 AND status IN ('active','paused') RETURNING `+sessionCols, userID, at)
	if err != nil {
		p.logger.Errorf("failed to stop active sessions: %v", err)
		return nil, err
	}
	defer rows.Close()
	var out []internal.PomodoroSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CompleteIfActive(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET status='completed', completed_at=$2, updated_at=$2
		WHERE id=$1 AND status='active'`, id, completedAt)
	if err != nil {
		p.logger.Errorf("failed conditional complete: %v", err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) PauseIfActive(ctx context.Context, id string, pausedAt time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET status='paused', paused_at=$2, updated_at=$2
		WHERE id=$1 AND status='active'`, id, pausedAt)
	if err != nil {
		p.logger.Errorf("failed conditional pause: %v", err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) ResumeIfPaused(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET status='active',
		end_time = end_time + ($2 - paused_at), paused_at=NULL, updated_at=$2
		WHERE id=$1 AND status='paused' AND paused_at IS NOT NULL`, id, at)
	if err != nil {
		if isUniqueViolation(err) {
			return false, internal.ErrActiveConflict
		}
		p.logger.Errorf("failed conditional resume: %v", err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) StopIfLive(ctx context.Context, id string, stoppedAt time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET status='stopped', stopped_at=$2, updated_at=$2
		WHERE id=$1 AND status IN ('active','paused')`, id, stoppedAt)
	if err != nil {
		p.logger.Errorf("failed conditional stop: %v", err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) ActivateIfScheduled(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE sessions SET status='active', updated_at=$2
		WHERE id=$1 AND status='scheduled'`, id, at)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		p.logger.Errorf("failed conditional activate: %v", err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// --- StatsRepository ---

func (p *PostgresStore) SaveStats(ctx context.Context, st *internal.UserStats) error {
	agg, err := json.Marshal(aggregates{
		ByDay: st.ByDay, ByMonth: st.ByMonth, ByTag: st.ByTag, ByLocation: st.ByLocation,
	})
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO user_stats (user_id, total_sessions, completed_sessions,
		total_minutes, completed_minutes, completion_rate, average_session_length,
		streak_days, longest_streak, last_session_date, aggregates, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (user_id) DO UPDATE SET total_sessions=EXCLUDED.total_sessions,
		completed_sessions=EXCLUDED.completed_sessions, total_minutes=EXCLUDED.total_minutes,
		completed_minutes=EXCLUDED.completed_minutes, completion_rate=EXCLUDED.completion_rate,
		average_session_length=EXCLUDED.average_session_length, streak_days=EXCLUDED.streak_days,
		longest_streak=GREATEST(user_stats.longest_streak, EXCLUDED.longest_streak),
		last_session_date=EXCLUDED.last_session_date, aggregates=EXCLUDED.aggregates,
		updated_at=EXCLUDED.updated_at`,
		st.UserID, st.TotalSessions, st.CompletedSessions, st.TotalMinutes, st.CompletedMinutes,
		st.CompletionRate, st.AverageSessionLength, st.StreakDays, st.LongestStreak,
		st.LastSessionDate, agg, st.UpdatedAt)
	if err != nil {
		p.logger.Errorf("failed to upsert stats: %v", err)
	}
	return err
}

func (p *PostgresStore) GetStats(ctx context.Context, userID string) (*internal.UserStats, error) {
	var st internal.UserStats
	var aggRaw []byte
	err := p.pool.QueryRow(ctx, `SELECT user_id, total_sessions, completed_sessions, total_minutes,
		completed_minutes, completion_rate, average_session_length, streak_days, longest_streak,
		last_session_date, aggregates, updated_at FROM user_stats WHERE user_id=$1`, userID).
		Scan(&st.UserID, &st.TotalSessions, &st.CompletedSessions, &st.TotalMinutes,
			&st.CompletedMinutes, &st.CompletionRate, &st.AverageSessionLength,
			&st.StreakDays, &st.LongestStreak, &st.LastSessionDate, &aggRaw, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var agg aggregates
	if err := json.Unmarshal(aggRaw, &agg); err != nil {
		return nil, err
	}
	st.ByDay, st.ByMonth, st.ByTag, st.ByLocation = agg.ByDay, agg.ByMonth, agg.ByTag, agg.ByLocation
	return &st, nil
}

// --- PreferenceRepository ---

func (p *PostgresStore) SavePreferences(ctx context.Context, pr *internal.UserPreferences) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO user_preferences (user_id, session_minutes, break_minutes,
		weekly_goal_minutes, theme, notifications_enabled, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO UPDATE SET session_minutes=EXCLUDED.session_minutes,
		break_minutes=EXCLUDED.break_minutes, weekly_goal_minutes=EXCLUDED.weekly_goal_minutes,
		theme=EXCLUDED.theme, notifications_enabled=EXCLUDED.notifications_enabled,
		updated_at=EXCLUDED.updated_at`,
		pr.UserID, pr.SessionMinutes, pr.BreakMinutes, pr.WeeklyGoalMinutes,
		pr.Theme, pr.NotificationsEnabled, pr.UpdatedAt)
	if err != nil {
		p.logger.Errorf("failed to upsert preferences: %v", err)
	}
	return err
}

func (p *PostgresStore) GetPreferences(ctx context.Context, userID string) (*internal.UserPreferences, error) {
	var pr internal.UserPreferences
	err := p.pool.QueryRow(ctx, `SELECT user_id, session_minutes, break_minutes, weekly_goal_minutes,
		theme, notifications_enabled, updated_at FROM user_preferences WHERE user_id=$1`, userID).
		Scan(&pr.UserID, &pr.SessionMinutes, &pr.BreakMinutes, &pr.WeeklyGoalMinutes,
			&pr.Theme, &pr.NotificationsEnabled, &pr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// --- MeetingRepository ---

func (p *PostgresStore) SaveMeeting(ctx context.Context, m *internal.Meeting) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO meetings (id, user_id, title, location, start_time,
		attendees, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, location=EXCLUDED.location,
		start_time=EXCLUDED.start_time, attendees=EXCLUDED.attendees, updated_at=EXCLUDED.updated_at`,
		m.ID, m.UserID, m.Title, m.Location, m.StartTime, m.Attendees, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		p.logger.Errorf("failed to save meeting: %v", err)
	}
	return err
}

func (p *PostgresStore) GetMeeting(ctx context.Context, id string) (*internal.Meeting, error) {
	var m internal.Meeting
	err := p.pool.QueryRow(ctx, `SELECT id, user_id, title, location, start_time, attendees,
		created_at, updated_at FROM meetings WHERE id=$1`, id).
		Scan(&m.ID, &m.UserID, &m.Title, &m.Location, &m.StartTime, &m.Attendees, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (p *PostgresStore) ListMeetings(ctx context.Context, userID string) ([]internal.Meeting, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, user_id, title, location, start_time, attendees,
		created_at, updated_at FROM meetings WHERE user_id=$1 ORDER BY start_time ASC`, userID)
	if err != nil {
		p.logger.Errorf("failed to query meetings: %v", err)
		return nil, err
	}
	defer rows.Close()
	var out []internal.Meeting
	for rows.Next() {
		var m internal.Meeting
		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Location, &m.StartTime,
			&m.Attendees, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteMeeting(ctx context.Context, userID, id string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM meetings WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		p.logger.Errorf("failed to delete meeting: %v", err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// --- UserRepository ---

func (p *PostgresStore) CreateUser(ctx context.Context, u *internal.User) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO users (id, username, display_name, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5)`, u.ID, u.Username, u.DisplayName, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return internal.ErrUsernameTaken
		}
		p.logger.Errorf("failed to insert user: %v", err)
	}
	return err
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*internal.User, error) {
	var u internal.User
	err := p.pool.QueryRow(ctx, `SELECT id, username, display_name, password_hash, created_at
		FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*internal.User, error) {
	var u internal.User
	err := p.pool.QueryRow(ctx, `SELECT id, username, display_name, password_hash, created_at
		FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- AuthSessionRepository ---

func (p *PostgresStore) SaveAuthSession(ctx context.Context, a *internal.AuthSession) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO auth_sessions (token, user_id, expires_at, created_at)
		VALUES ($1,$2,$3,$4)`, a.Token, a.UserID, a.ExpiresAt, a.CreatedAt)
	if err != nil {
		p.logger.Errorf("failed to insert auth session: %v", err)
	}
	return err
}

func (p *PostgresStore) GetAuthSession(ctx context.Context, token string) (*internal.AuthSession, error) {
	var a internal.AuthSession
	err := p.pool.QueryRow(ctx, `SELECT token, user_id, expires_at, created_at
		FROM auth_sessions WHERE token=$1`, token).
		Scan(&a.Token, &a.UserID, &a.ExpiresAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *PostgresStore) DeleteAuthSession(ctx context.Context, token string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE token=$1`, token)
	return err
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)

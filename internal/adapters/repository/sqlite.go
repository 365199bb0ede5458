package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/rating"
	"github.com/okian/ascent/internal/domain/streak"
	"github.com/okian/ascent/internal/domain/types"
)

// migrations returns the schema statements, one per string (SQLite executes
// one statement at a time).
func migrations() []string {
	return []string{
		// Append-only activity log. Soft deletes only; rows are never
		// physically removed by this core.
		`CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			dimension  TEXT NOT NULL DEFAULT '',
			day        TEXT NOT NULL,
			payload    TEXT NOT NULL DEFAULT '{}',
			deleted    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_dim_day ON events(user_id, dimension, day)`,

		// Aggregate root, one row per user.
		`CREATE TABLE IF NOT EXISTS level_state (
			user_id       TEXT PRIMARY KEY,
			total_xp      INTEGER NOT NULL DEFAULT 0,
			overall_level INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`,

		// Per-dimension XP, level, and NELO.
		`CREATE TABLE IF NOT EXISTS dimension_state (
			user_id   TEXT NOT NULL,
			dimension TEXT NOT NULL,
			xp        INTEGER NOT NULL DEFAULT 0,
			level     INTEGER NOT NULL DEFAULT 1,
			nelo      INTEGER NOT NULL DEFAULT 1200,
			PRIMARY KEY (user_id, dimension)
		)`,

		// Streak cache rows: a materialized view over the events table.
		`CREATE TABLE IF NOT EXISTS streak_state (
			user_id           TEXT NOT NULL,
			dimension         TEXT NOT NULL,
			current           INTEGER NOT NULL DEFAULT 0,
			longest           INTEGER NOT NULL DEFAULT 0,
			last_active_day   INTEGER NOT NULL DEFAULT 0,
			started_day       INTEGER NOT NULL DEFAULT 0,
			total_days        INTEGER NOT NULL DEFAULT 0,
			freezes_available INTEGER NOT NULL DEFAULT 0,
			freezes_used      INTEGER NOT NULL DEFAULT 0,
			updated_at        TEXT NOT NULL,
			PRIMARY KEY (user_id, dimension)
		)`,
	}
}

// SQLiteStore implements Store on a single SQLite database. A store-level
// mutex serializes writers (single-writer semantics); the surrounding SQL
// transaction provides the all-or-nothing commit.
type SQLiteStore struct {
	db *sql.DB

	writeMu sync.Mutex
	mu      sync.RWMutex
	closed  bool
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	cfg := sqliteConfig{busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		path, cfg.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The connection pool must not exceed one writer; SQLite serializes
	// writes anyway and extra connections only produce SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the aggregate and streak rows for a user. Idempotent.
func (s *SQLiteStore) Init(ctx context.Context, userID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin init: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO level_state (user_id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, now, now); err != nil {
		return fmt.Errorf("init level_state: %w", err)
	}
	for _, d := range dimension.All() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dimension_state (user_id, dimension, nelo)
			VALUES (?, ?, ?)
			ON CONFLICT(user_id, dimension) DO NOTHING
		`, userID, d.String(), rating.InitialRating); err != nil {
			return fmt.Errorf("init dimension_state: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO streak_state (user_id, dimension, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(user_id, dimension) DO NOTHING
		`, userID, d.String(), now); err != nil {
			return fmt.Errorf("init streak_state: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit init: %w", err)
	}
	return nil
}

// Update runs fn inside one write transaction. Writers serialize on the
// store-level mutex; an error from fn rolls back every write.
func (s *SQLiteStore) Update(ctx context.Context, userID string, fn func(tx Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	st := &sqliteTx{ctx: ctx, tx: tx, userID: userID}
	if err := fn(st); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// View runs fn against a read-only snapshot transaction.
func (s *SQLiteStore) View(ctx context.Context, userID string, fn func(tx ReadTx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&sqliteTx{ctx: ctx, tx: tx, userID: userID})
}

// Count returns the number of initialized users.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM level_state`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Close shuts the store down. Further calls return ErrClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// sqliteTx implements Tx over one *sql.Tx scoped to a user.
type sqliteTx struct {
	ctx    context.Context
	tx     *sql.Tx
	userID string
}

func (t *sqliteTx) LevelState() (*LevelState, error) {
	st := LevelState{UserID: t.userID}
	var createdStr, updStr string
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT total_xp, overall_level, created_at, updated_at
		FROM level_state WHERE user_id = ?
	`, t.userID).Scan(&st.TotalXP, &st.Overall, &createdStr, &updStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, t.userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load level_state: %w", err)
	}
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updStr)

	st.Dimensions = make(map[dimension.Dimension]*DimensionState, len(dimension.All()))
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT dimension, xp, level, nelo FROM dimension_state WHERE user_id = ?
	`, t.userID)
	if err != nil {
		return nil, fmt.Errorf("load dimension_state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name string
			ds   DimensionState
		)
		if err := rows.Scan(&name, &ds.XP, &ds.Level, &ds.NELO); err != nil {
			return nil, fmt.Errorf("scan dimension_state: %w", err)
		}
		d, err := dimension.Parse(name)
		if err != nil {
			return nil, err
		}
		st.Dimensions[d] = &ds
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dimension_state: %w", err)
	}
	return &st, nil
}

func (t *sqliteTx) StreakState(d dimension.Dimension) (*streak.State, error) {
	st := streak.State{Dimension: d}
	var lastDay, startedDay int64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT current, longest, last_active_day, started_day, total_days,
		       freezes_available, freezes_used
		FROM streak_state WHERE user_id = ? AND dimension = ?
	`, t.userID, d.String()).Scan(
		&st.Current, &st.Longest, &lastDay, &startedDay,
		&st.TotalActiveDays, &st.FreezesAvailable, &st.FreezesUsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, t.userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load streak_state: %w", err)
	}
	st.LastActiveDay = types.Day(lastDay)
	st.StartedDay = types.Day(startedDay)
	return &st, nil
}

func (t *sqliteTx) ActivityDays(d dimension.Dimension) ([]types.Day, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT DISTINCT day FROM events
		WHERE user_id = ? AND dimension = ? AND type IN (?, ?) AND deleted = 0
		ORDER BY day
	`, t.userID, d.String(), RecordXPAward, RecordActivityDay)
	if err != nil {
		return nil, fmt.Errorf("query activity days: %w", err)
	}
	defer rows.Close()

	var days []types.Day
	for rows.Next() {
		var dayStr string
		if err := rows.Scan(&dayStr); err != nil {
			return nil, fmt.Errorf("scan activity day: %w", err)
		}
		day, err := types.ParseDay(dayStr)
		if err != nil {
			return nil, fmt.Errorf("parse activity day %q: %w", dayStr, err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity days: %w", err)
	}
	return days, nil
}

func (t *sqliteTx) HasEvent(id string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT 1 FROM events WHERE id = ? AND user_id = ?
	`, id, t.userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check event: %w", err)
	}
	return true, nil
}

func (t *sqliteTx) PutLevelState(s *LevelState) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE level_state SET total_xp = ?, overall_level = ?, updated_at = ?
		WHERE user_id = ?
	`, s.TotalXP, s.Overall, now, t.userID)
	if err != nil {
		return fmt.Errorf("put level_state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotInitialized, t.userID)
	}
	for d, ds := range s.Dimensions {
		if _, err := t.tx.ExecContext(t.ctx, `
			UPDATE dimension_state SET xp = ?, level = ?, nelo = ?
			WHERE user_id = ? AND dimension = ?
		`, ds.XP, ds.Level, ds.NELO, t.userID, d.String()); err != nil {
			return fmt.Errorf("put dimension_state: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) PutStreakState(s *streak.State) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE streak_state SET current = ?, longest = ?, last_active_day = ?,
		       started_day = ?, total_days = ?, freezes_available = ?,
		       freezes_used = ?, updated_at = ?
		WHERE user_id = ? AND dimension = ?
	`, s.Current, s.Longest, int64(s.LastActiveDay), int64(s.StartedDay),
		s.TotalActiveDays, s.FreezesAvailable, s.FreezesUsed, now,
		t.userID, s.Dimension.String())
	if err != nil {
		return fmt.Errorf("put streak_state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotInitialized, t.userID)
	}
	return nil
}

func (t *sqliteTx) AppendEvent(ev EventRecord) error {
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	deleted := 0
	if ev.Deleted {
		deleted = 1
	}
	if _, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO events (id, user_id, type, dimension, day, payload, deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, t.userID, ev.Type, ev.Dimension.String(), ev.Day.String(),
		ev.Payload, deleted, created.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

package thread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSummaryGap is returned when a summary insert would break the contiguous
// coverage of [0, memory_pointer).
var ErrSummaryGap = errors.New("summary range does not start at memory pointer")

// Store persists threads, messages, summaries and entities in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath and applies the
// schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open thread db: %w", err)
	}
	store, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing database handle and applies the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	// Best-effort migration for existing dbs (no-op if column exists).
	_, _ = db.Exec(`ALTER TABLE threads ADD COLUMN language TEXT NOT NULL DEFAULT 'en'`)
	_, _ = db.Exec(`ALTER TABLE summaries ADD COLUMN level INTEGER NOT NULL DEFAULT 1`)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle so other stores can share the same database file.
func (s *Store) DB() *sql.DB { return s.db }

// GetOrCreate loads the thread with the given ID, creating it when absent.
func (s *Store) GetOrCreate(ctx context.Context, threadID, userID, language string) (*Thread, error) {
	t, err := s.Get(ctx, threadID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	now := time.Now().UTC()
	if language == "" {
		language = "en"
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO threads (thread_id, user_id, language, turn_count, stage, memory_pointer, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, 0, ?, ?)`,
		threadID, userID, language, string(StageInit), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return &Thread{
		ThreadID:  threadID,
		UserID:    userID,
		Language:  language,
		Stage:     StageInit,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get loads a thread by ID. Returns sql.ErrNoRows (wrapped) when missing.
func (s *Store) Get(ctx context.Context, threadID string) (*Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, user_id, language, turn_count, stage, memory_pointer, created_at, updated_at
		FROM threads WHERE thread_id = ?`, threadID)
	var t Thread
	var stage string
	if err := row.Scan(&t.ThreadID, &t.UserID, &t.Language, &t.TurnCount, &stage, &t.MemoryPointer, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Stage = Stage(stage)
	return &t, nil
}

// CommitTurn atomically appends the user and assistant messages for the next
// turn, records extracted entities, advances the turn count and updates the
// stage. Nothing is written if any step fails.
func (s *Store) CommitTurn(ctx context.Context, t *Thread, user, assistant Message, entities []Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	turn := t.TurnCount
	for _, m := range []Message{user, assistant} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (thread_id, turn_index, role, content, token_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.ThreadID, turn, m.Role, m.Content, m.TokenCount, now); err != nil {
			return fmt.Errorf("failed to append %s message: %w", m.Role, err)
		}
	}
	for _, e := range entities {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entities (thread_id, kind, value, confidence, turn_index, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.ThreadID, e.Kind, e.Value, e.Confidence, turn, now); err != nil {
			return fmt.Errorf("failed to record entity: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE threads SET turn_count = ?, stage = ?, updated_at = ? WHERE thread_id = ?`,
		turn+1, string(t.Stage), now, t.ThreadID); err != nil {
		return fmt.Errorf("failed to advance turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	t.TurnCount = turn + 1
	t.UpdatedAt = now
	return nil
}

// MessagesSince returns all messages with turn_index >= fromTurn in turn
// order, user before assistant within a turn.
func (s *Store) MessagesSince(ctx context.Context, threadID string, fromTurn int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, turn_index, role, content, token_count, created_at
		FROM messages
		WHERE thread_id = ? AND turn_index >= ?
		ORDER BY turn_index ASC, CASE role WHEN 'user' THEN 0 ELSE 1 END ASC`,
		threadID, fromTurn)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ThreadID, &m.TurnIndex, &m.Role, &m.Content, &m.TokenCount, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertSummary stores a summary and advances the thread's memory pointer.
// The range must start exactly at the current pointer so summaries stay a
// contiguous, non-overlapping partition of [0, memory_pointer).
func (s *Store) InsertSummary(ctx context.Context, sum Summary) error {
	if sum.EndTurn <= sum.StartTurn {
		return fmt.Errorf("summary range [%d,%d) is empty", sum.StartTurn, sum.EndTurn)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin summary insert: %w", err)
	}
	defer tx.Rollback()

	var pointer, turnCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT memory_pointer, turn_count FROM threads WHERE thread_id = ?`,
		sum.ThreadID).Scan(&pointer, &turnCount); err != nil {
		return fmt.Errorf("failed to load thread for summary: %w", err)
	}
	if sum.StartTurn != pointer {
		return fmt.Errorf("%w: start=%d pointer=%d", ErrSummaryGap, sum.StartTurn, pointer)
	}
	if sum.EndTurn > turnCount {
		return fmt.Errorf("summary end %d exceeds turn count %d", sum.EndTurn, turnCount)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO summaries (thread_id, start_turn, end_turn, text, token_count, level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sum.ThreadID, sum.StartTurn, sum.EndTurn, sum.Text, sum.TokenCount, sum.Level, now); err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE threads SET memory_pointer = ?, updated_at = ? WHERE thread_id = ?`,
		sum.EndTurn, now, sum.ThreadID); err != nil {
		return fmt.Errorf("failed to advance memory pointer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit summary: %w", err)
	}
	return nil
}

// LatestSummary returns the most recent summary for the thread, or nil when
// none exists.
func (s *Store) LatestSummary(ctx context.Context, threadID string) (*Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, start_turn, end_turn, text, token_count, level, created_at
		FROM summaries WHERE thread_id = ?
		ORDER BY start_turn DESC LIMIT 1`, threadID)
	var sum Summary
	if err := row.Scan(&sum.ThreadID, &sum.StartTurn, &sum.EndTurn, &sum.Text, &sum.TokenCount, &sum.Level, &sum.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sum, nil
}

// Summaries returns all summaries for the thread in range order.
func (s *Store) Summaries(ctx context.Context, threadID string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, start_turn, end_turn, text, token_count, level, created_at
		FROM summaries WHERE thread_id = ? ORDER BY start_turn ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ThreadID, &sum.StartTurn, &sum.EndTurn, &sum.Text, &sum.TokenCount, &sum.Level, &sum.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// RecentEntities returns up to limit entities for the thread, newest first.
func (s *Store) RecentEntities(ctx context.Context, threadID string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, kind, value, confidence, turn_index, created_at
		FROM entities WHERE thread_id = ?
		ORDER BY turn_index DESC, id DESC LIMIT ?`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ThreadID, &e.Kind, &e.Value, &e.Confidence, &e.TurnIndex, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/threadbox/threadbox/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development and
// test store; PostgresStore is the production one.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/threadbox.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/threadbox.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		created_by TEXT NOT NULL REFERENCES users(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id),
		body TEXT NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS thread_participants (
		thread_id TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id),
		last_read_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (thread_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_thread_created ON messages(thread_id, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_messages_thread_unread ON messages(thread_id) WHERE is_read = 0;
	CREATE INDEX IF NOT EXISTS idx_participants_user ON thread_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_threads_updated ON threads(updated_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), name, email, passwordHash, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id.String())
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `WHERE email = ?`, email)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users `+where, arg).Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	return user, nil
}

// placeholders returns "?, ?, ..." for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// FilterExistingUsers returns the subset of ids that reference existing users.
func (s *SQLiteStore) FilterExistingUsers(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM users WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var existing []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		existing = append(existing, uuid.MustParse(idStr))
	}
	return existing, rows.Err()
}

// CreateThread atomically creates a thread, its first message and all
// participant links.
func (s *SQLiteStore) CreateThread(ctx context.Context, subject string, createdBy uuid.UUID, body string, participantIDs []uuid.UUID) (*models.Thread, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id := uuid.New()
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (id, subject, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), subject, createdBy.String(), now, now)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, user_id, body, is_read, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, newMessageID(), id.String(), createdBy.String(), body, now, now)
	if err != nil {
		return nil, err
	}

	for _, userID := range participantIDs {
		var lastReadAt *time.Time
		if userID == createdBy {
			lastReadAt = &now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO thread_participants (thread_id, user_id, last_read_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, id.String(), userID.String(), lastReadAt, now, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetThread(ctx, id)
}

// GetThread retrieves a thread by ID.
func (s *SQLiteStore) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	thread := &models.Thread{}
	var idStr, createdByStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, subject, created_by, created_at, updated_at
		FROM threads WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&thread.Subject,
		&createdByStr,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	thread.ID = uuid.MustParse(idStr)
	thread.CreatedBy = uuid.MustParse(createdByStr)
	return thread, nil
}

// ListThreadsForUser retrieves one page of the user's threads, newest
// activity first, with unread counts computed in the same grouped query.
func (s *SQLiteStore) ListThreadsForUser(ctx context.Context, userID uuid.UUID, opts ListThreadsOptions) ([]models.ThreadSummary, int, error) {
	const base = `
		FROM threads t
		JOIN thread_participants tp ON tp.thread_id = t.id AND tp.user_id = ?
		LEFT JOIN messages m ON m.thread_id = t.id
		WHERE (? = '' OR t.subject LIKE '%' || ? || '%')
		GROUP BY t.id
		HAVING ? = 0
		    OR COALESCE(SUM(CASE WHEN m.is_read = 0 AND m.user_id <> tp.user_id THEN 1 ELSE 0 END), 0) > 0
	`

	unreadOnly := 0
	if opts.UnreadOnly {
		unreadOnly = 1
	}
	baseArgs := []any{userID.String(), opts.Search, opts.Search, unreadOnly}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT t.id `+base+`) AS page`, baseArgs...,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	args := append(baseArgs, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.subject, t.created_by, t.created_at, t.updated_at,
		       COALESCE(SUM(CASE WHEN m.is_read = 0 AND m.user_id <> tp.user_id THEN 1 ELSE 0 END), 0) AS unread_count
		`+base+`
		ORDER BY t.updated_at DESC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var threads []models.ThreadSummary
	for rows.Next() {
		var t models.ThreadSummary
		var idStr, createdByStr string
		err := rows.Scan(
			&idStr,
			&t.Subject,
			&createdByStr,
			&t.CreatedAt,
			&t.UpdatedAt,
			&t.UnreadCount,
		)
		if err != nil {
			return nil, 0, err
		}
		t.ID = uuid.MustParse(idStr)
		t.CreatedBy = uuid.MustParse(createdByStr)
		threads = append(threads, t)
	}
	return threads, total, rows.Err()
}

// IsParticipant reports whether the user is a member of the thread.
func (s *SQLiteStore) IsParticipant(ctx context.Context, threadID, userID uuid.UUID) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM thread_participants
			WHERE thread_id = ? AND user_id = ?
		)
	`, threadID.String(), userID.String()).Scan(&exists)
	return exists == 1, err
}

// ListParticipants retrieves the participant set of a thread.
func (s *SQLiteStore) ListParticipants(ctx context.Context, threadID uuid.UUID) ([]models.Participant, error) {
	byThread, err := s.ParticipantsForThreads(ctx, []uuid.UUID{threadID})
	if err != nil {
		return nil, err
	}
	return byThread[threadID], nil
}

// ParticipantsForThreads bulk-loads participant sets for a page of threads.
func (s *SQLiteStore) ParticipantsForThreads(ctx context.Context, threadIDs []uuid.UUID) (map[uuid.UUID][]models.Participant, error) {
	result := make(map[uuid.UUID][]models.Participant, len(threadIDs))
	if len(threadIDs) == 0 {
		return result, nil
	}

	args := make([]any, len(threadIDs))
	for i, id := range threadIDs {
		args[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tp.thread_id, tp.user_id, u.name, u.email, tp.last_read_at
		FROM thread_participants tp
		JOIN users u ON u.id = tp.user_id
		WHERE tp.thread_id IN (`+placeholders(len(threadIDs))+`)
		ORDER BY tp.created_at ASC, tp.user_id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Participant
		var threadIDStr, userIDStr string
		if err := rows.Scan(&threadIDStr, &userIDStr, &p.Name, &p.Email, &p.LastReadAt); err != nil {
			return nil, err
		}
		p.ThreadID = uuid.MustParse(threadIDStr)
		p.UserID = uuid.MustParse(userIDStr)
		result[p.ThreadID] = append(result[p.ThreadID], p)
	}
	return result, rows.Err()
}

// MarkThreadRead flips every unread message not authored by the viewer to
// read and stamps the viewer's last_read_at, in one transaction.
func (s *SQLiteStore) MarkThreadRead(ctx context.Context, threadID, viewerID uuid.UUID, at time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET is_read = 1, updated_at = ?
		WHERE thread_id = ? AND user_id <> ? AND is_read = 0
	`, at, threadID.String(), viewerID.String())
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE thread_participants
		SET last_read_at = ?, updated_at = ?
		WHERE thread_id = ? AND user_id = ?
	`, at, at, threadID.String(), viewerID.String())
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// AppendMessage inserts an unread message and bumps the owning thread's
// updated_at in the same transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, threadID, authorID uuid.UUID, body string) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	msg := &models.Message{
		ID:        newMessageID(),
		ThreadID:  threadID,
		UserID:    authorID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	msg.UpdatedAt = msg.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, user_id, body, is_read, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, msg.ID, threadID.String(), authorID.String(), body, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE threads SET updated_at = ? WHERE id = ?
	`, msg.CreatedAt, threadID.String())
	if err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		SELECT name, email FROM users WHERE id = ?
	`, authorID.String()).Scan(&msg.UserName, &msg.UserEmail)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages retrieves one page of a thread's messages in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, threadID uuid.UUID, limit, offset int) ([]models.Message, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE thread_id = ?`, threadID.String(),
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.thread_id, m.user_id, m.body, m.is_read, m.created_at, m.updated_at,
		       u.name, u.email
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.thread_id = ?
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT ? OFFSET ?
	`, threadID.String(), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages, err := scanSQLiteMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// LatestMessages bulk-loads the most recent message of each thread.
func (s *SQLiteStore) LatestMessages(ctx context.Context, threadIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	result := make(map[uuid.UUID]models.Message, len(threadIDs))
	if len(threadIDs) == 0 {
		return result, nil
	}

	args := make([]any, len(threadIDs))
	for i, id := range threadIDs {
		args[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.thread_id, m.user_id, m.body, m.is_read, m.created_at, m.updated_at,
		       u.name, u.email
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.thread_id IN (`+placeholders(len(threadIDs))+`)
		  AND m.id = (
			SELECT m2.id FROM messages m2
			WHERE m2.thread_id = m.thread_id
			ORDER BY m2.created_at DESC, m2.id DESC
			LIMIT 1
		  )
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := scanSQLiteMessages(rows)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		result[m.ThreadID] = m
	}
	return result, nil
}

func scanSQLiteMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var threadIDStr, userIDStr string
		var isReadInt int
		err := rows.Scan(
			&m.ID,
			&threadIDStr,
			&userIDStr,
			&m.Body,
			&isReadInt,
			&m.CreatedAt,
			&m.UpdatedAt,
			&m.UserName,
			&m.UserEmail,
		)
		if err != nil {
			return nil, err
		}
		m.ThreadID = uuid.MustParse(threadIDStr)
		m.UserID = uuid.MustParse(userIDStr)
		m.IsRead = isReadInt == 1
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

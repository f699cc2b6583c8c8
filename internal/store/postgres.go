package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/threadbox/threadbox/internal/models"
)

// newMessageID returns a fresh ULID. Lexicographic order matches creation
// order, which keeps message pagination stable under timestamp ties.
func newMessageID() string {
	return ulid.Make().String()
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, name, email, password_hash, created_at, updated_at
	`, name, email, passwordHash).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `WHERE email = $1`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users `+where, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// FilterExistingUsers returns the subset of ids that reference existing users.
func (s *PostgresStore) FilterExistingUsers(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT id FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var existing []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing = append(existing, id)
	}
	return existing, rows.Err()
}

// CreateThread atomically creates a thread, its first message and all
// participant links. The creator's link is stamped with the creation time,
// every other link starts with a null last_read_at.
func (s *PostgresStore) CreateThread(ctx context.Context, subject string, createdBy uuid.UUID, body string, participantIDs []uuid.UUID) (*models.Thread, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	thread := &models.Thread{}
	err = tx.QueryRow(ctx, `
		INSERT INTO threads (subject, created_by)
		VALUES ($1, $2)
		RETURNING id, subject, created_by, created_at, updated_at
	`, subject, createdBy).Scan(
		&thread.ID,
		&thread.Subject,
		&thread.CreatedBy,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, thread_id, user_id, body, is_read, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)
	`, newMessageID(), thread.ID, createdBy, body, thread.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, userID := range participantIDs {
		var lastReadAt *time.Time
		if userID == createdBy {
			lastReadAt = &thread.CreatedAt
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO thread_participants (thread_id, user_id, last_read_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
		`, thread.ID, userID, lastReadAt, thread.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return thread, nil
}

// GetThread retrieves a thread by ID.
func (s *PostgresStore) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	thread := &models.Thread{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, subject, created_by, created_at, updated_at
		FROM threads WHERE id = $1
	`, id).Scan(
		&thread.ID,
		&thread.Subject,
		&thread.CreatedBy,
		&thread.CreatedAt,
		&thread.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return thread, nil
}

// ListThreadsForUser retrieves one page of the user's threads, newest
// activity first. Unread counts are computed inside the same grouped query,
// so a page of N threads costs a constant number of round trips.
func (s *PostgresStore) ListThreadsForUser(ctx context.Context, userID uuid.UUID, opts ListThreadsOptions) ([]models.ThreadSummary, int, error) {
	const base = `
		FROM threads t
		JOIN thread_participants tp ON tp.thread_id = t.id AND tp.user_id = $1
		LEFT JOIN messages m ON m.thread_id = t.id
		WHERE ($2::text = '' OR t.subject ILIKE '%' || $2::text || '%')
		GROUP BY t.id
		HAVING $3::boolean = FALSE
		    OR COUNT(m.id) FILTER (WHERE m.is_read = FALSE AND m.user_id <> $1) > 0
	`

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM (SELECT t.id `+base+`) AS page`,
		userID, opts.Search, opts.UnreadOnly,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.subject, t.created_by, t.created_at, t.updated_at,
		       COUNT(m.id) FILTER (WHERE m.is_read = FALSE AND m.user_id <> $1) AS unread_count
		`+base+`
		ORDER BY t.updated_at DESC
		LIMIT $4 OFFSET $5
	`, userID, opts.Search, opts.UnreadOnly, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var threads []models.ThreadSummary
	for rows.Next() {
		var t models.ThreadSummary
		err := rows.Scan(
			&t.ID,
			&t.Subject,
			&t.CreatedBy,
			&t.CreatedAt,
			&t.UpdatedAt,
			&t.UnreadCount,
		)
		if err != nil {
			return nil, 0, err
		}
		threads = append(threads, t)
	}
	return threads, total, rows.Err()
}

// IsParticipant reports whether the user is a member of the thread.
func (s *PostgresStore) IsParticipant(ctx context.Context, threadID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM thread_participants
			WHERE thread_id = $1 AND user_id = $2
		)
	`, threadID, userID).Scan(&exists)
	return exists, err
}

// ListParticipants retrieves the participant set of a thread.
func (s *PostgresStore) ListParticipants(ctx context.Context, threadID uuid.UUID) ([]models.Participant, error) {
	byThread, err := s.ParticipantsForThreads(ctx, []uuid.UUID{threadID})
	if err != nil {
		return nil, err
	}
	return byThread[threadID], nil
}

// ParticipantsForThreads bulk-loads participant sets for a page of threads.
func (s *PostgresStore) ParticipantsForThreads(ctx context.Context, threadIDs []uuid.UUID) (map[uuid.UUID][]models.Participant, error) {
	result := make(map[uuid.UUID][]models.Participant, len(threadIDs))
	if len(threadIDs) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT tp.thread_id, tp.user_id, u.name, u.email, tp.last_read_at
		FROM thread_participants tp
		JOIN users u ON u.id = tp.user_id
		WHERE tp.thread_id = ANY($1)
		ORDER BY tp.created_at ASC, tp.user_id ASC
	`, threadIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ThreadID, &p.UserID, &p.Name, &p.Email, &p.LastReadAt); err != nil {
			return nil, err
		}
		result[p.ThreadID] = append(result[p.ThreadID], p)
	}
	return result, rows.Err()
}

// MarkThreadRead flips every unread message not authored by the viewer to
// read and stamps the viewer's last_read_at, in one transaction. Re-viewing
// an already-read thread affects zero rows and is not an error.
func (s *PostgresStore) MarkThreadRead(ctx context.Context, threadID, viewerID uuid.UUID, at time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, updated_at = $3
		WHERE thread_id = $1 AND user_id <> $2 AND is_read = FALSE
	`, threadID, viewerID, at)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE thread_participants
		SET last_read_at = $3, updated_at = $3
		WHERE thread_id = $1 AND user_id = $2
	`, threadID, viewerID, at)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// AppendMessage inserts an unread message and bumps the owning thread's
// updated_at in the same transaction. This is the only place a thread's
// updated_at changes after creation.
func (s *PostgresStore) AppendMessage(ctx context.Context, threadID, authorID uuid.UUID, body string) (*models.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	msg := &models.Message{}
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, thread_id, user_id, body, is_read)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id, thread_id, user_id, body, is_read, created_at, updated_at
	`, newMessageID(), threadID, authorID, body).Scan(
		&msg.ID,
		&msg.ThreadID,
		&msg.UserID,
		&msg.Body,
		&msg.IsRead,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE threads SET updated_at = $2 WHERE id = $1
	`, threadID, msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		SELECT name, email FROM users WHERE id = $1
	`, authorID).Scan(&msg.UserName, &msg.UserEmail)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages retrieves one page of a thread's messages in creation order.
func (s *PostgresStore) ListMessages(ctx context.Context, threadID uuid.UUID, limit, offset int) ([]models.Message, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE thread_id = $1`, threadID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.thread_id, m.user_id, m.body, m.is_read, m.created_at, m.updated_at,
		       u.name, u.email
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.thread_id = $1
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT $2 OFFSET $3
	`, threadID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID,
			&m.ThreadID,
			&m.UserID,
			&m.Body,
			&m.IsRead,
			&m.CreatedAt,
			&m.UpdatedAt,
			&m.UserName,
			&m.UserEmail,
		)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, m)
	}
	return messages, total, rows.Err()
}

// LatestMessages bulk-loads the most recent message of each thread.
func (s *PostgresStore) LatestMessages(ctx context.Context, threadIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	result := make(map[uuid.UUID]models.Message, len(threadIDs))
	if len(threadIDs) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (m.thread_id)
		       m.id, m.thread_id, m.user_id, m.body, m.is_read, m.created_at, m.updated_at,
		       u.name, u.email
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.thread_id = ANY($1)
		ORDER BY m.thread_id, m.created_at DESC, m.id DESC
	`, threadIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID,
			&m.ThreadID,
			&m.UserID,
			&m.Body,
			&m.IsRead,
			&m.CreatedAt,
			&m.UpdatedAt,
			&m.UserName,
			&m.UserEmail,
		)
		if err != nil {
			return nil, err
		}
		result[m.ThreadID] = m
	}
	return result, rows.Err()
}

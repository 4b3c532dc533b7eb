package chatbot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrUnknownSession is returned by SQLStore when a session id does not exist
var ErrUnknownSession = errors.New("unknown chat session")

// MySQL error numbers
const (
	errDuplicateEntry   = 1062
	errNoReferencedRow2 = 1452
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
	id CHAR(36) NOT NULL PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
	id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	session_id CHAR(36) NOT NULL,
	role VARCHAR(16) NOT NULL,
	content MEDIUMTEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
);`,
}

// SQLStore implements ConversationStore with a MySQL database.
// The DSN must contain parseTime=true.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore returns a SQLStore using db
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the store's tables if they don't exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Could not create tables: %w", err)
		}
	}
	return nil
}

// Get returns the session with the given id and its messages, or nil if it doesn't exist
func (s *SQLStore) Get(ctx context.Context, id string) (*ChatSession, error) {
	sess := &ChatSession{ID: id, Messages: []ChatMessage{}}

	row := s.db.QueryRowContext(ctx, "SELECT title, created_at, updated_at FROM chat_sessions WHERE id=?;", id)
	if err := row.Scan(&sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("Could not query chat session(%s): %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT role, content FROM chat_messages WHERE session_id=? ORDER BY id;", id)
	if err != nil {
		return nil, fmt.Errorf("Could not query chat messages(%s): %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("Could not scan chat message(%s): %w", id, err)
		}
		sess.Messages = append(sess.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Could not scan chat messages(%s): %w", id, err)
	}

	return sess, nil
}

// Create inserts a new session
func (s *SQLStore) Create(ctx context.Context, title string) (*ChatSession, error) {
	now := time.Now().UTC().Truncate(time.Second)

	// ids are random, but retry once on the off chance of a collision
	for attempt := 0; ; attempt++ {
		sess := &ChatSession{ID: newID(), Title: title, Messages: []ChatMessage{}, CreatedAt: now, UpdatedAt: now}
		_, err := s.db.ExecContext(ctx, "INSERT INTO chat_sessions(id, title, created_at, updated_at) VALUES(?, ?, ?, ?);",
			sess.ID, sess.Title, sess.CreatedAt, sess.UpdatedAt,
		)
		if err == nil {
			return sess, nil
		}
		if e, ok := err.(*mysql.MySQLError); ok && e.Number == errDuplicateEntry && attempt == 0 {
			continue
		}
		return nil, fmt.Errorf("Could not insert chat session: %w", err)
	}
}

// AddMessages inserts msgs into the session with the given id in a single transaction
func (s *SQLStore) AddMessages(ctx context.Context, id string, msgs []ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Truncate(time.Second)
	for _, m := range msgs {
		_, err := tx.ExecContext(ctx, "INSERT INTO chat_messages(session_id, role, content, created_at) VALUES(?, ?, ?, ?);",
			id, string(m.Role), m.Content, now,
		)
		if err != nil {
			if e, ok := err.(*mysql.MySQLError); ok && e.Number == errNoReferencedRow2 {
				return ErrUnknownSession
			}
			return fmt.Errorf("Could not insert chat message(%s): %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE chat_sessions SET updated_at=? WHERE id=?;", now, id); err != nil {
		return fmt.Errorf("Could not update chat session(%s): %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Could not commit transaction: %w", err)
	}
	return nil
}

// SetTitle updates the title of the session with the given id
func (s *SQLStore) SetTitle(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE chat_sessions SET title=?, updated_at=? WHERE id=?;",
		title, time.Now().UTC().Truncate(time.Second), id,
	)
	if err != nil {
		return fmt.Errorf("Could not update chat session(%s): %w", id, err)
	}
	return nil
}

package cursor

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

// PostgresStore keeps one cursor row per feed, for deployments where the
// job runs on a host without durable local disk.
type PostgresStore struct {
	db   *sql.DB
	feed string
}

func NewPostgresStore(connectionString, feed string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresStore{db: db, feed: feed}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	log.Println("✅ PostgreSQL cursor store connected")
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feed_cursor (
		feed VARCHAR(100) PRIMARY KEY,
		last_id TEXT NOT NULL,
		title TEXT,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load() (string, error) {
	var lastID string
	err := s.db.QueryRow(
		`SELECT last_id FROM feed_cursor WHERE feed = $1`, s.feed,
	).Scan(&lastID)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		// Same degradation as an unreadable file: bootstrap, don't crash.
		log.Printf("⚠️ Cursor row unreadable for feed %s, treating as absent: %v", s.feed, err)
		return "", nil
	}

	return lastID, nil
}

func (s *PostgresStore) Save(id, title string) error {
	query := `
		INSERT INTO feed_cursor (feed, last_id, title, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (feed) DO UPDATE SET
			last_id = EXCLUDED.last_id,
			title = EXCLUDED.title,
			updated_at = NOW()
	`

	if _, err := s.db.Exec(query, s.feed, id, title); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

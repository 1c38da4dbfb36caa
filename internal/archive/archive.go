// Package archive persists published posts to PostgreSQL. Archival is
// optional: when disabled the archive is a no-op and the agent runs
// entirely in memory.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/blueherald/blueherald/internal/models"
)

// Config holds database connection configuration.
type Config struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// DefaultConfig returns pool defaults with archival disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    10 * time.Second,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS published_posts (
	id          BIGSERIAL PRIMARY KEY,
	post_id     TEXT NOT NULL,
	content     TEXT NOT NULL,
	hashtags    TEXT[] NOT NULL DEFAULT '{}',
	headline    TEXT NOT NULL DEFAULT '',
	success     BOOLEAN NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	metadata    JSONB NOT NULL DEFAULT '{}',
	posted_at   TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS published_posts_posted_at_idx ON published_posts (posted_at DESC);`

// Record is one archived post row.
type Record struct {
	ID         int64           `db:"id" json:"id"`
	PostID     string          `db:"post_id" json:"post_id"`
	Content    string          `db:"content" json:"content"`
	Headline   string          `db:"headline" json:"headline"`
	Success    bool            `db:"success" json:"success"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata"`
	PostedAt   time.Time       `db:"posted_at" json:"posted_at"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Archive writes publish outcomes to PostgreSQL.
type Archive struct {
	config Config
	db     *sqlx.DB
}

// Open connects to the configured database and ensures the schema
// exists. With archival disabled it returns a no-op archive.
func Open(config Config) (*Archive, error) {
	if !config.Enabled {
		log.Info().Msg("post archive disabled")
		return &Archive{config: config}, nil
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("archive: dsn is required when enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: ensure schema: %w", err)
	}

	log.Info().Msg("post archive connected")
	return &Archive{config: config, db: db}, nil
}

// Enabled reports whether posts are being persisted.
func (a *Archive) Enabled() bool { return a.config.Enabled && a.db != nil }

// Insert archives one publish outcome. A no-op when disabled.
func (a *Archive) Insert(ctx context.Context, result models.PostResult) error {
	if !a.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.config.QueryTimeout)
	defer cancel()

	metadata, err := json.Marshal(result.Content.Metadata)
	if err != nil {
		return fmt.Errorf("archive: marshal metadata: %w", err)
	}

	query := `
		INSERT INTO published_posts (post_id, content, hashtags, headline, success, retry_count, metadata, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = a.db.ExecContext(ctx, query,
		result.PostID, result.Content.Text, pq.Array(result.Content.Hashtags),
		result.Content.SourceNews.Headline, result.Success, result.RetryCount,
		metadata, result.Timestamp)
	if err != nil {
		return fmt.Errorf("archive: insert post: %w", err)
	}
	return nil
}

// Recent returns the latest archived posts, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Record, error) {
	if !a.Enabled() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.config.QueryTimeout)
	defer cancel()

	query := `
		SELECT id, post_id, content, headline, success, retry_count, metadata, posted_at, created_at
		FROM published_posts
		ORDER BY posted_at DESC
		LIMIT $1`
	var records []Record
	if err := a.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("archive: query recent posts: %w", err)
	}
	return records, nil
}

// Ping checks database connectivity. Nil when disabled.
func (a *Archive) Ping(ctx context.Context) error {
	if !a.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.config.QueryTimeout)
	defer cancel()
	return a.db.PingContext(ctx)
}

// Close releases the connection pool.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

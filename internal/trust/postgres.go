package trust

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/binary-souls/agentic-network/internal/identity"
)

// PostgresStore persists trust records so a node's local reputation view
// survives restarts. One row per (peer, skill).
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
}

const createTrustTable = `
CREATE TABLE IF NOT EXISTS trust_records (
	peer        TEXT        NOT NULL,
	skill       TEXT        NOT NULL,
	score       DOUBLE PRECISION NOT NULL,
	last_worked TIMESTAMPTZ NOT NULL,
	completed   BIGINT      NOT NULL DEFAULT 0,
	failed      BIGINT      NOT NULL DEFAULT 0,
	PRIMARY KEY (peer, skill)
)`

// NewPostgresStore connects and ensures the trust_records table exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTrustTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create trust_records: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: log.New(log.Writer(), "[TRUST-PG] ", log.LstdFlags),
	}, nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT peer, skill, score, last_worked, completed, failed FROM trust_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var peer string
		if err := rows.Scan(&peer, &rec.Skill, &rec.Score, &rec.LastWorked, &rec.Completed, &rec.Failed); err != nil {
			return nil, err
		}
		rec.Peer = identity.PeerID(peer)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trust_records (peer, skill, score, last_worked, completed, failed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (peer, skill) DO UPDATE SET
			score = EXCLUDED.score,
			last_worked = EXCLUDED.last_worked,
			completed = EXCLUDED.completed,
			failed = EXCLUDED.failed`,
		string(rec.Peer), rec.Skill, rec.Score, rec.LastWorked, rec.Completed, rec.Failed)
	return err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

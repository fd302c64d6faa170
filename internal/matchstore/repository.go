package matchstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository archives finished matches in PostgreSQL. It is write-only; the
// relay never reads a match back from it.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Schema is the table SaveResult writes to.
const Schema = `CREATE TABLE IF NOT EXISTS checkers_matches (
    match_id      TEXT PRIMARY KEY,
    white_addr    TEXT NOT NULL,
    black_addr    TEXT NOT NULL,
    result        TEXT NOT NULL,
    pdn_result    TEXT NOT NULL,
    final_board   TEXT NOT NULL,
    final_version BIGINT NOT NULL,
    snapshots     INTEGER NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    ended_at      TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT NOT NULL
)`

// EnsureSchema creates the archive table when it is missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

// SaveResult upserts a finished match.
func (r *Repository) SaveResult(ctx context.Context, m *Match) error {
	if r == nil || r.db == nil || m == nil {
		return nil
	}
	duration := m.UpdatedAt.Sub(m.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO checkers_matches (
        match_id, white_addr, black_addr, result, pdn_result,
        final_board, final_version, snapshots,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
      ) ON CONFLICT (match_id) DO UPDATE SET
        white_addr=EXCLUDED.white_addr,
        black_addr=EXCLUDED.black_addr,
        result=EXCLUDED.result,
        pdn_result=EXCLUDED.pdn_result,
        final_board=EXCLUDED.final_board,
        final_version=EXCLUDED.final_version,
        snapshots=EXCLUDED.snapshots,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		m.ID,
		m.White, m.Black,
		m.Result, ResultToPDN(m.Result),
		m.Board, int64(m.Version), m.Snapshots,
		m.CreatedAt, m.UpdatedAt, duration,
	)
	return err
}

// ResultToPDN maps a GAME_OVER payload to the PDN result tag.
func ResultToPDN(result string) string {
	switch strings.ToUpper(strings.TrimSpace(result)) {
	case "WHITE":
		return "2-0"
	case "BLACK":
		return "0-2"
	case "REMIS":
		return "1-1"
	default:
		return "*"
	}
}

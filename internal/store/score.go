package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spacedog/spacedog/internal/score"
)

const schema = `
CREATE TABLE IF NOT EXISTS scores (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	score      BIGINT NOT NULL CHECK (score >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS scores_score_idx ON scores (score DESC, id ASC);
`

var _ score.GlobalStore = (*ScoreStore)(nil)

// ScoreStore is the global leaderboard.
type ScoreStore struct {
	db *pgxpool.Pool
}

func NewScoreStore(db *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{db: db}
}

func (s *ScoreStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate scores: %w", err)
	}
	return nil
}

func (s *ScoreStore) Save(ctx context.Context, e score.Entry) error {
	created, err := time.Parse(time.RFC3339, e.Date)
	if err != nil {
		created = time.Now()
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO scores (name, score, created_at) VALUES ($1, $2, $3)
	`, e.Name, e.Score, created)
	return err
}

// Top returns the n best scores. Equal scores keep insertion order.
func (s *ScoreStore) Top(ctx context.Context, n int) ([]score.Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name, score, created_at FROM scores
		ORDER BY score DESC, id ASC LIMIT $1
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []score.Entry{}
	for rows.Next() {
		var (
			e       score.Entry
			created time.Time
		)
		if err := rows.Scan(&e.Name, &e.Score, &created); err != nil {
			return nil, err
		}
		e.Date = created.UTC().Format(score.DateLayout)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *ScoreStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

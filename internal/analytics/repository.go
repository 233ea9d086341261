package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles analytics_events PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists one event. Replays of an already stored id are ignored.
func (r *Repository) Insert(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event payload: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO analytics_events (id, kind, client_hash, referral_code, platform, input_method, is_mobile, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, string(e.Kind), e.ClientHash, nullable(e.ReferralCode), nullable(e.Platform),
		nullable(e.InputMethod), e.IsMobile, payload, e.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting analytics event: %w", err)
	}
	return nil
}

// KindCount is the number of events of one kind.
type KindCount struct {
	Kind  Kind  `json:"eventType"`
	Count int64 `json:"count"`
}

// CountByKind aggregates events that occurred at or after since.
func (r *Repository) CountByKind(ctx context.Context, since time.Time) ([]KindCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, COUNT(*) FROM analytics_events
		 WHERE occurred_at >= $1
		 GROUP BY kind
		 ORDER BY kind`, since)
	if err != nil {
		return nil, fmt.Errorf("querying event counts: %w", err)
	}
	defer rows.Close()

	var counts []KindCount
	for rows.Next() {
		var c KindCount
		if err := rows.Scan(&c.Kind, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning event count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

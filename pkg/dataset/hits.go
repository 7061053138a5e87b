package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const hitsSchema = `
CREATE TABLE IF NOT EXISTS page_hits (
    page          TEXT PRIMARY KEY,
    total_hits    INTEGER NOT NULL DEFAULT 1,
    first_seen    DATETIME NOT NULL,
    last_seen     DATETIME NOT NULL
);
`

// PageStat is the hit record of one page.
type PageStat struct {
	Page      string    `json:"page"`
	TotalHits int64     `json:"total_hits"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Summary is a high-level overview of all recorded hits.
type Summary struct {
	TotalHits int64 `json:"total_hits"`
	Pages     int64 `json:"pages"`
}

// SetupSchema creates the tables used by HitCounter.
func SetupSchema(db *sql.DB) error {
	_, err := db.Exec(hitsSchema)
	return err
}

// HitCounter records page requests.
type HitCounter struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewHitCounter returns a HitCounter using db. A nil logger discards all logs.
func NewHitCounter(db *sql.DB, logger *slog.Logger) *HitCounter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HitCounter{db: db, logger: logger, now: time.Now}
}

// Record counts one request for page and returns the page's new total, in a
// single transaction.
func (h *HitCounter) Record(ctx context.Context, page string) (int64, error) {
	now := h.now().UTC()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	_, err = tx.ExecContext(ctx, `
        INSERT INTO page_hits (page, first_seen, last_seen) VALUES (?, ?, ?)
        ON CONFLICT(page) DO UPDATE SET total_hits = total_hits + 1, last_seen = ?
    `, page, now, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert page_hits: %w", err)
	}

	var total int64
	if err = tx.QueryRowContext(ctx, "SELECT total_hits FROM page_hits WHERE page = ?", page).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to retrieve updated page_hits: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit hits transaction: %w", err)
	}
	return total, nil
}

// Top returns up to limit pages ordered by hit count, highest first.
func (h *HitCounter) Top(ctx context.Context, limit int) ([]PageStat, error) {
	rows, err := h.db.QueryContext(ctx,
		"SELECT page, total_hits, first_seen, last_seen FROM page_hits ORDER BY total_hits DESC, page LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query page_hits: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var stats []PageStat
	for rows.Next() {
		var s PageStat
		if err = rows.Scan(&s.Page, &s.TotalHits, &s.FirstSeen, &s.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan page_hits: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Summary sums the hits of all pages.
func (h *HitCounter) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := h.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(total_hits), 0), COUNT(*) FROM page_hits").Scan(&s.TotalHits, &s.Pages)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize page_hits: %w", err)
	}
	return s, nil
}

// Forget deletes pages not requested since before.
func (h *HitCounter) Forget(ctx context.Context, before time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, "DELETE FROM page_hits WHERE last_seen < ?", before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune page_hits: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		h.logger.Info("Forgot idle pages", "count", n)
	}
	return n, nil
}

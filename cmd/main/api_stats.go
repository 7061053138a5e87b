package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/CTAG07/webtpl/pkg/dataset"
)

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	hits   *dataset.HitCounter
	logger *slog.Logger
}

func NewStatsAPI(hits *dataset.HitCounter, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{hits: hits, logger: logger}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats/summary", requireScope(scopeStatsRead, s.handleSummary))
	mux.HandleFunc("GET /api/stats/pages", requireScope(scopeStatsRead, s.handlePages))
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.hits.Summary(r.Context())
	if err != nil {
		s.logger.Error("Failed to summarize hits", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// handlePages lists the most requested pages; ?limit= caps the list (default 100).
func (s *StatsAPI) handlePages(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'limit' must be a positive integer")
			return
		}
		limit = n
	}
	stats, err := s.hits.Top(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to query top pages", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if stats == nil {
		stats = []dataset.PageStat{}
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// runHitsCleanup periodically forgets pages idle for longer than the
// configured delay. It returns when ctx is done.
func runHitsCleanup(ctx context.Context, hits *dataset.HitCounter, cfg *HitsConfig, logger *slog.Logger) {
	if cfg == nil || !cfg.Enabled || cfg.CleanupIntervalSec <= 0 || cfg.ForgetDelayHours <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(cfg.CleanupIntervalSec) * time.Second)
	defer ticker.Stop()
	delay := time.Duration(cfg.ForgetDelayHours) * time.Hour

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := hits.Forget(ctx, time.Now().UTC().Add(-delay)); err != nil {
				logger.Error("Hits cleanup failed", "error", err)
			}
		}
	}
}

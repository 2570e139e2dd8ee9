// Package match resolves catalog tracks to source candidates using a
// composite fuzzy score over text, duration, tempo, and key signals.
package match

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

// Acceptance thresholds for the composite score.
const (
	// AcceptThreshold is the score at and above which a match is
	// cached as confident and returned without review.
	AcceptThreshold = 90.0

	// SoftAcceptThreshold is the score at and above which a match is
	// returned but also queued for review instead of cached.
	SoftAcceptThreshold = 75.0
)

// Provider searches an external source for candidates matching a query string.
type Provider interface {
	Search(ctx context.Context, query string) ([]models.Candidate, error)
}

// Match is the outcome of resolving one track.
//
// A zero-value Match (empty SourceID, Score 0) means no candidate could
// be resolved; callers must treat that as a normal outcome, not an error.
type Match struct {
	SourceID string
	Score    float64
	Accepted bool // score cleared AcceptThreshold, cached as confident
	Review   bool // score landed in the soft-accept band, queued for review
}

// Matcher resolves tracks against a candidate provider with a
// persistent confident-match cache and a low-confidence retry queue.
type Matcher struct {
	provider Provider
	cache    *Cache
	retries  *RetryQueue
	logger   *log.Logger
}

// NewMatcher creates a Matcher with the given provider and stores.
func NewMatcher(provider Provider, cache *Cache, retries *RetryQueue, logger *log.Logger) *Matcher {
	return &Matcher{provider: provider, cache: cache, retries: retries, logger: logger}
}

// phrasedQueries builds up to three search phrasings for a track,
// ordered from most to least specific.
func phrasedQueries(q Query) []string {
	return []string{
		fmt.Sprintf("%s - %s topic", q.Title, q.Artist),
		fmt.Sprintf("%s - %s official audio", q.Title, q.Artist),
		fmt.Sprintf("%s %s", q.Artist, q.Title),
	}
}

// Resolve finds the best-matching source candidate for the query.
//
// A cache hit short-circuits without touching the provider. Otherwise
// candidates are gathered query by query, stopping early once one
// clears the acceptance threshold. Provider errors abort resolution;
// an empty candidate pool does not.
func (m *Matcher) Resolve(ctx context.Context, q Query) (Match, error) {
	cacheKey := shared.NormalizeTrackKey(q.Title, q.Artist)

	if entry, ok := m.cache.Get(cacheKey); ok {
		m.logger.Debug("match cache hit", "key", cacheKey, "source", entry.MatchID)
		return Match{SourceID: entry.MatchID, Score: entry.Score, Accepted: true}, nil
	}

	var (
		best      models.Candidate
		bestScore float64
		found     bool
	)

	seen := make(map[string]struct{})
	for _, query := range phrasedQueries(q) {
		candidates, err := m.provider.Search(ctx, query)
		if err != nil {
			return Match{}, fmt.Errorf("candidate search failed: %w", err)
		}

		for _, cand := range candidates {
			if _, dup := seen[cand.ID]; dup {
				continue
			}
			seen[cand.ID] = struct{}{}

			score := CompositeScore(q, cand)
			if !found || score > bestScore {
				best = cand
				bestScore = score
				found = true
			}
		}

		if found && bestScore >= AcceptThreshold {
			break
		}
	}

	if !found {
		// A never-found track still needs a review trail.
		if err := m.retries.Enqueue(cacheKey, q.Title, q.Artist); err != nil {
			return Match{}, err
		}
		m.logger.Warn("no candidates found", "title", q.Title, "artist", q.Artist)
		return Match{}, nil
	}

	return m.decide(q, cacheKey, best, bestScore)
}

// decide classifies a scored best candidate against the thresholds.
// Both boundaries are inclusive: a score of exactly AcceptThreshold is
// cached as confident, exactly SoftAcceptThreshold is returned for
// review.
func (m *Matcher) decide(q Query, cacheKey string, best models.Candidate, bestScore float64) (Match, error) {
	switch {
	case bestScore >= AcceptThreshold:
		if err := m.cache.Put(cacheKey, best.ID, bestScore); err != nil {
			return Match{}, err
		}
		m.logger.Info("match accepted", "key", cacheKey, "source", best.ID, "score", fmt.Sprintf("%.1f", bestScore))
		return Match{SourceID: best.ID, Score: bestScore, Accepted: true}, nil

	case bestScore >= SoftAcceptThreshold:
		if err := m.retries.Enqueue(cacheKey, q.Title, q.Artist); err != nil {
			return Match{}, err
		}
		m.logger.Warn("match needs review", "key", cacheKey, "source", best.ID, "score", fmt.Sprintf("%.1f", bestScore))
		return Match{SourceID: best.ID, Score: bestScore, Review: true}, nil

	default:
		if err := m.retries.Enqueue(cacheKey, q.Title, q.Artist); err != nil {
			return Match{}, err
		}
		m.logger.Warn("no confident match", "key", cacheKey, "best_score", fmt.Sprintf("%.1f", bestScore))
		return Match{Score: bestScore}, nil
	}
}

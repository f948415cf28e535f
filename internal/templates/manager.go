package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"loginsight/internal/model"
)

// Store is the subset of internal/store.Postgres the Manager needs.
type Store interface {
	UpsertTemplate(ctx context.Context, systemID, fingerprint, pattern string) (model.MessageTemplate, error)
	GetTemplate(ctx context.Context, id string) (model.MessageTemplate, error)
	UpdateTemplateScores(ctx context.Context, templateID string, scores map[string]float64, avgMaxScore float64) error
	MarkLowInterest(ctx context.Context, templateID string, lowInterest bool) error
	LowInterestTemplateIDs(ctx context.Context, templateIDs []string) (map[string]bool, error)
	ResetTemplateCache(ctx context.Context, systemID string) ([]string, error)
}

// Manager canonicalizes events into templates and serves/persists their
// cached score vectors, fronting durable storage with a Redis TTL cache.
type Manager struct {
	store             Store
	redis             *redis.Client
	ttl               time.Duration
	messageMaxLength  int
	lowScoreThreshold float64
	lowScoreMinScorings int
}

// Config configures a Manager's tunables, sourced from config.PipelineConfig.
type Config struct {
	ScoreCacheTTL       time.Duration
	MessageMaxLength    int
	LowScoreThreshold   float64
	LowScoreMinScorings int
}

// New builds a Manager. redisClient may be nil, in which case every Resolve
// falls through to the durable store on each call (no caching, still correct).
func New(store Store, redisClient *redis.Client, cfg Config) *Manager {
	if cfg.MessageMaxLength <= 0 {
		cfg.MessageMaxLength = 512
	}
	if cfg.ScoreCacheTTL <= 0 {
		cfg.ScoreCacheTTL = 60 * time.Minute
	}
	return &Manager{
		store:               store,
		redis:               redisClient,
		ttl:                 cfg.ScoreCacheTTL,
		messageMaxLength:    cfg.MessageMaxLength,
		lowScoreThreshold:   cfg.LowScoreThreshold,
		lowScoreMinScorings: cfg.LowScoreMinScorings,
	}
}

func cacheKey(systemID, fingerprint string) string {
	return fmt.Sprintf("tmpl:%s:%s", systemID, fingerprint)
}

// Resolve canonicalizes event.Message and returns the (possibly newly
// created) MessageTemplate for it.
func (m *Manager) Resolve(ctx context.Context, event model.Event) (model.MessageTemplate, error) {
	pattern := Canonicalize(event.Message, m.messageMaxLength)
	fp := Fingerprint(event.SystemID, pattern)
	t, err := m.store.UpsertTemplate(ctx, event.SystemID, fp, pattern)
	if err != nil {
		return model.MessageTemplate{}, fmt.Errorf("resolve template: %w", err)
	}
	return t, nil
}

// CachedScores returns a usable (not yet stale) score vector for a template,
// preferring Redis, falling back to the durable row's last_scored_at/TTL
// check. A false second return means the scoring loop must call the LLM.
func (m *Manager) CachedScores(ctx context.Context, t model.MessageTemplate) (map[string]float64, bool) {
	if m.redis != nil {
		if raw, err := m.redis.Get(ctx, cacheKey(t.SystemID, t.Fingerprint)).Result(); err == nil {
			var scores map[string]float64
			if json.Unmarshal([]byte(raw), &scores) == nil {
				return scores, true
			}
		}
	}
	if t.LastScoredAt == nil || len(t.CachedScores) == 0 {
		return nil, false
	}
	if time.Since(*t.LastScoredAt) >= m.ttl {
		return nil, false
	}
	return t.CachedScores, true
}

// PutScores persists a freshly computed score vector for a template, both
// durably and in the Redis front cache, and updates the low-interest flag
// once the template has accumulated enough low-scoring occurrences that the
// scoring loop can skip re-scoring it going forward.
func (m *Manager) PutScores(ctx context.Context, t model.MessageTemplate, scores map[string]float64) error {
	maxScore := 0.0
	for _, v := range scores {
		if v > maxScore {
			maxScore = v
		}
	}
	avgMax := (t.AvgMaxScore*float64(t.ScoringCount) + maxScore) / float64(t.ScoringCount+1)

	if err := m.store.UpdateTemplateScores(ctx, t.ID, scores, avgMax); err != nil {
		return err
	}

	newCount := t.ScoringCount + 1
	lowInterest := avgMax < m.lowScoreThreshold && newCount >= m.lowScoreMinScorings
	if lowInterest != t.LowInterest {
		if err := m.store.MarkLowInterest(ctx, t.ID, lowInterest); err != nil {
			return err
		}
	}

	if m.redis != nil {
		if raw, err := json.Marshal(scores); err == nil {
			_ = m.redis.Set(ctx, cacheKey(t.SystemID, t.Fingerprint), raw, m.ttl).Err()
		}
	}
	return nil
}

// LowInterestTemplateIDs returns, of templateIDs, the subset flagged
// low-interest, so callers (meta-analysis event selection) can exclude them
// from the LLM prompt without round-tripping every event's full template row.
func (m *Manager) LowInterestTemplateIDs(ctx context.Context, templateIDs []string) (map[string]bool, error) {
	return m.store.LowInterestTemplateIDs(ctx, templateIDs)
}

// Flush implements the operator-triggered cache flush (spec §4.B): zeros
// cached_scores/last_scored_at for every template of systemID, durably, and
// evicts their Redis front-cache entries so the next Resolve/CachedScores
// cycle recomputes from scratch.
func (m *Manager) Flush(ctx context.Context, systemID string) error {
	fingerprints, err := m.store.ResetTemplateCache(ctx, systemID)
	if err != nil {
		return fmt.Errorf("flush template cache: %w", err)
	}
	if m.redis == nil {
		return nil
	}
	keys := make([]string, len(fingerprints))
	for i, fp := range fingerprints {
		keys[i] = cacheKey(systemID, fp)
	}
	if len(keys) == 0 {
		return nil
	}
	return m.redis.Del(ctx, keys...).Err()
}

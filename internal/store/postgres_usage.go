package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"loginsight/internal/model"
)

// InsertLlmUsage persists one LLM call's token/cost accounting row.
func (p *Postgres) InsertLlmUsage(ctx context.Context, u model.LlmUsage) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO llm_usage (id, system_id, run_type, model, token_input, token_output,
			request_count, event_count, cost_estimate)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, nullableString(u.SystemID), u.RunType, u.Model, u.TokenInput, u.TokenOutput,
		u.RequestCount, u.EventCount, u.CostEstimate)
	if err != nil {
		return fmt.Errorf("insert llm usage: %w", err)
	}
	return nil
}

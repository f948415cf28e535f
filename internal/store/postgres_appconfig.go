package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// AppConfigGet is the typed getter config.NewAppConfigLoader adapts into a
// config.Loader: app_config is a flat (key, value
// jsonb) table; value is decoded into out, a pointer to the caller's expected
// shape (AIConfig, PrivacyFilterConfig, ...).
func (p *Postgres) AppConfigGet(ctx context.Context, key string, out any) error {
	row := p.pool.QueryRow(ctx, `SELECT value FROM app_config WHERE key = $1`, key)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return fmt.Errorf("app config get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("app config unmarshal %s: %w", key, err)
	}
	return nil
}

// AppConfigGetRaw returns the stored JSON bytes for key verbatim, for HTTP
// handlers that pass operator-edited config straight through without an
// intermediate typed struct.
func (p *Postgres) AppConfigGetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	row := p.pool.QueryRow(ctx, `SELECT value FROM app_config WHERE key = $1`, key)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("app config get raw %s: %w", key, err)
	}
	return raw, true, nil
}

// AppConfigPut upserts a JSON-encodable value under key.
func (p *Postgres) AppConfigPut(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("app config marshal %s: %w", key, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO app_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, raw)
	if err != nil {
		return fmt.Errorf("app config put %s: %w", key, err)
	}
	return nil
}

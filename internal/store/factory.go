package store

import (
	"context"
	"fmt"

	"loginsight/internal/config"
	"loginsight/internal/model"
)

// BackendFactory selects the EventStore backend per MonitoredSystem.EventSource,
// mirroring the teacher's databases.Manager backend-switch (memory/auto/postgres
// per concern) but keyed on a single domain field instead of per-feature config.
type BackendFactory struct {
	primary  *Postgres
	external *ClickHouse // nil when no ClickHouse address is configured
}

// NewBackendFactory wires the primary Postgres store and, if cfg.ClickHouse.Addr
// is set, an external ClickHouse backend. A factory with a nil external backend
// still works for deployments where every system uses EventSourcePrimary.
func NewBackendFactory(ctx context.Context, primary *Postgres, cfg config.ClickHouseConfig) (*BackendFactory, error) {
	f := &BackendFactory{primary: primary}
	if cfg.Addr != "" {
		ch, err := NewClickHouseFromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("new backend factory: %w", err)
		}
		f.external = ch
	}
	return f, nil
}

// For resolves the EventStore for system, per its EventSource.
func (f *BackendFactory) For(system model.MonitoredSystem) (EventStore, error) {
	switch system.EventSource {
	case model.EventSourcePrimary, "":
		return f.primary, nil
	case model.EventSourceExternal:
		if f.external == nil {
			return nil, fmt.Errorf("system %s requires external event source but no clickhouse backend is configured", system.ID)
		}
		return f.external, nil
	default:
		return nil, fmt.Errorf("system %s has unknown event_source %q", system.ID, system.EventSource)
	}
}

// Primary exposes the Postgres store directly for callers (templates,
// findings, aggregator, maintenance) that need repository methods beyond the
// narrow EventStore interface.
func (f *BackendFactory) Primary() *Postgres { return f.primary }

// Package store abstracts read/write access to Event, MessageTemplate,
// Window, EventScore, Finding, LlmUsage, and MaintenanceLog rows over
// pluggable backends, selected per-MonitoredSystem by its EventSource.
package store

import (
	"context"
	"errors"
	"time"

	"loginsight/internal/model"
)

// ErrNotFound is returned when a lookup by ID finds no matching row.
var ErrNotFound = errors.New("store: not found")

// SearchQuery filters an Event search across host/program/severity/time range.
type SearchQuery struct {
	SystemID  string
	Host      string
	Program   string
	Severity  string
	Text      string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// EventStore is the pluggable backend for one MonitoredSystem's events. A
// MonitoredSystem with EventSource == primary is served by the Postgres
// backend; EventSource == external is served by the ClickHouse backend.
// Both backends implement this interface. The one difference callers see is
// UnscoredEvents (see ClickHouse.UnscoredEvents), which the Scoring Loop
// post-filters for external-backed systems.
type EventStore interface {
	// Ingest appends a batch of events, assigning IDs where absent.
	Ingest(ctx context.Context, events []model.Event) error
	// ListWindow returns events for systemID within [from, to), ordered by
	// timestamp ascending.
	ListWindow(ctx context.Context, systemID string, from, to time.Time) ([]model.Event, error)
	// GetByIDs fetches specific events, e.g. for finding key-event hydration.
	GetByIDs(ctx context.Context, ids []string) ([]model.Event, error)
	// Search runs an ad hoc filtered query for the HTTP API.
	Search(ctx context.Context, q SearchQuery) ([]model.Event, error)
	// Acknowledge stamps acknowledged_at on the given event IDs.
	Acknowledge(ctx context.Context, ids []string, at time.Time) error
	// DeleteOlderThan removes events for systemID with timestamp before cutoff,
	// in chunks of at most chunkSize per transaction, returning the total
	// number of rows removed.
	DeleteOlderThan(ctx context.Context, systemID string, cutoff time.Time, chunkSize int) (int, error)
	// BulkDelete removes specific event IDs, in chunks of at most chunkSize,
	// returning the total number of rows removed.
	BulkDelete(ctx context.Context, ids []string, chunkSize int) (int, error)
	// UnscoredEvents returns up to limit events for systemID that have no
	// event-type EventScore row yet and are not suppressed, ordered by
	// timestamp ascending (spec §4.E's "timestamp-ascending... stable
	// template-first-seen" ordering). Used by the Scoring Loop.
	UnscoredEvents(ctx context.Context, systemID string, limit int) ([]model.Event, error)
	// SetEventTemplate stamps template_id on the given event IDs once the
	// Template & Cache manager has canonicalized them.
	SetEventTemplate(ctx context.Context, ids []string, templateID string) error
	// GroupEvents returns the individual events backing one grouped row from
	// GroupedEventScores: either every event sharing template_id = groupKey,
	// or (when groupKey matches no template) the single event whose id
	// equals groupKey.
	GroupEvents(ctx context.Context, systemID, groupKey string, limit int) ([]model.Event, error)
}

// Factory resolves the EventStore backend for a MonitoredSystem.
type Factory interface {
	For(system model.MonitoredSystem) (EventStore, error)
}

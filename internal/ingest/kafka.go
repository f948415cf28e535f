// Package ingest bridges external log producers into the Event Store. It is
// the only component that crosses the Kafka transport boundary: everything
// downstream of Consumer.Run only ever sees model.Event values landed through
// EventStore.Ingest.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"loginsight/internal/config"
	"loginsight/internal/model"
	"loginsight/internal/store"
)

// envelope is the wire shape external producers publish. SystemID must name
// an already-registered MonitoredSystem; events for an unknown or inactive
// system are dropped (logged, not retried — a bad producer shouldn't wedge
// the whole partition).
type envelope struct {
	SystemID   string         `json:"system_id"`
	Message    string         `json:"message"`
	Host       string         `json:"host,omitempty"`
	Program    string         `json:"program,omitempty"`
	Severity   string         `json:"severity,omitempty"`
	Service    string         `json:"service,omitempty"`
	Facility   string         `json:"facility,omitempty"`
	SourceIP   string         `json:"source_ip,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	SpanID     string         `json:"span_id,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// SystemResolver looks up a MonitoredSystem by ID, used to validate inbound
// events and to pick the right EventStore backend per EventSource.
type SystemResolver interface {
	GetSystem(ctx context.Context, id string) (model.MonitoredSystem, error)
}

// Consumer reads envelopes off a Kafka topic and lands them in the Event
// Store via store.BackendFactory, batching per fetch round the way the
// scoring loop batches per window.
type Consumer struct {
	reader     *kafka.Reader
	systems    SystemResolver
	backend    *store.BackendFactory
	batchSize  int
	flushEvery time.Duration
}

// NewConsumer builds a Consumer from cfg. batchSize bounds how many events
// accumulate before Ingest is called; flushEvery bounds how long a partial
// batch waits before being flushed anyway.
func NewConsumer(cfg config.KafkaConfig, systems SystemResolver, backend *store.BackendFactory, batchSize int, flushEvery time.Duration) *Consumer {
	if batchSize <= 0 {
		batchSize = 200
	}
	if flushEvery <= 0 {
		flushEvery = 2 * time.Second
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, systems: systems, backend: backend, batchSize: batchSize, flushEvery: flushEvery}
}

// Run consumes until ctx is canceled, committing each message only after its
// batch has been durably ingested (at-least-once, matching the teacher's
// commit-after-handle orchestrator consumer).
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Error().Err(err).Msg("ingest_kafka_reader_close_error")
		}
	}()

	var batch []kafka.Message
	var events []model.Event
	flush := time.NewTicker(c.flushEvery)
	defer flush.Stop()

	flushBatch := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.ingestBatch(ctx, events); err != nil {
			log.Error().Err(err).Int("count", len(events)).Msg("ingest_batch_error")
			batch = batch[:0]
			events = events[:0]
			return
		}
		if err := c.reader.CommitMessages(ctx, batch...); err != nil {
			log.Error().Err(err).Msg("ingest_commit_error")
		}
		batch = batch[:0]
		events = events[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flushBatch()
			return ctx.Err()
		case <-flush.C:
			flushBatch()
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.flushEvery)
		m, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				flushBatch()
				return ctx.Err()
			}
			log.Error().Err(err).Msg("ingest_fetch_error")
			continue
		}

		ev, ok := c.decode(ctx, m)
		if !ok {
			// Unrecoverable per-message problem (bad JSON, unknown system):
			// commit immediately so it doesn't block the partition.
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				log.Error().Err(err).Msg("ingest_commit_skip_error")
			}
			continue
		}

		batch = append(batch, m)
		events = append(events, ev)
		if len(batch) >= c.batchSize {
			flushBatch()
		}
	}
}

func (c *Consumer) decode(ctx context.Context, m kafka.Message) (model.Event, bool) {
	var env envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Warn().Err(err).Str("topic", m.Topic).Int64("offset", m.Offset).Msg("ingest_decode_error")
		return model.Event{}, false
	}
	if env.SystemID == "" {
		log.Warn().Str("topic", m.Topic).Int64("offset", m.Offset).Msg("ingest_missing_system_id")
		return model.Event{}, false
	}
	system, err := c.systems.GetSystem(ctx, env.SystemID)
	if err != nil {
		log.Warn().Err(err).Str("system_id", env.SystemID).Msg("ingest_unknown_system")
		return model.Event{}, false
	}
	if !system.Active {
		log.Warn().Str("system_id", env.SystemID).Msg("ingest_inactive_system")
		return model.Event{}, false
	}
	ts := env.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return model.Event{
		SystemID:   env.SystemID,
		Timestamp:  ts,
		Message:    env.Message,
		Host:       env.Host,
		Program:    env.Program,
		Severity:   env.Severity,
		Service:    env.Service,
		Facility:   env.Facility,
		SourceIP:   env.SourceIP,
		TraceID:    env.TraceID,
		SpanID:     env.SpanID,
		ExternalID: env.ExternalID,
		Raw:        env.Raw,
	}, true
}

// ingestBatch groups events by system so one Ingest call per system is
// issued, each against that system's resolved backend, even when a batch
// mixes primary and external systems.
func (c *Consumer) ingestBatch(ctx context.Context, events []model.Event) error {
	bySystem := make(map[string][]model.Event)
	systemOf := make(map[string]model.MonitoredSystem)
	for _, e := range events {
		if _, ok := systemOf[e.SystemID]; !ok {
			sys, err := c.systems.GetSystem(ctx, e.SystemID)
			if err != nil {
				return fmt.Errorf("resolve system %s: %w", e.SystemID, err)
			}
			systemOf[e.SystemID] = sys
		}
		bySystem[e.SystemID] = append(bySystem[e.SystemID], e)
	}
	for systemID, batch := range bySystem {
		es, err := c.backend.For(systemOf[systemID])
		if err != nil {
			return fmt.Errorf("resolve backend for %s: %w", systemID, err)
		}
		if err := es.Ingest(ctx, batch); err != nil {
			return fmt.Errorf("ingest %s: %w", systemID, err)
		}
	}
	return nil
}

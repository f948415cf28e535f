package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginsight/internal/config"
	"loginsight/internal/model"
)

type fakeSystemResolver struct {
	systems map[string]model.MonitoredSystem
}

func (f *fakeSystemResolver) GetSystem(ctx context.Context, id string) (model.MonitoredSystem, error) {
	sys, ok := f.systems[id]
	if !ok {
		return model.MonitoredSystem{}, errors.New("unknown system")
	}
	return sys, nil
}

func kafkaMessage(t *testing.T, env map[string]any) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Topic: "events", Offset: 1, Value: raw}
}

func TestConsumer_Decode_ValidEnvelopeForActiveSystem(t *testing.T) {
	resolver := &fakeSystemResolver{systems: map[string]model.MonitoredSystem{
		"sys-1": {ID: "sys-1", Active: true},
	}}
	c := &Consumer{systems: resolver}

	msg := kafkaMessage(t, map[string]any{
		"system_id": "sys-1",
		"message":   "disk usage high",
		"host":      "db-1",
	})

	ev, ok := c.decode(context.Background(), msg)
	require.True(t, ok)
	assert.Equal(t, "sys-1", ev.SystemID)
	assert.Equal(t, "disk usage high", ev.Message)
	assert.Equal(t, "db-1", ev.Host)
	assert.False(t, ev.Timestamp.IsZero(), "a missing timestamp defaults to now")
}

func TestConsumer_Decode_MissingSystemIDIsDropped(t *testing.T) {
	c := &Consumer{systems: &fakeSystemResolver{systems: map[string]model.MonitoredSystem{}}}
	msg := kafkaMessage(t, map[string]any{"message": "no system"})

	_, ok := c.decode(context.Background(), msg)
	assert.False(t, ok)
}

func TestConsumer_Decode_UnknownSystemIsDropped(t *testing.T) {
	c := &Consumer{systems: &fakeSystemResolver{systems: map[string]model.MonitoredSystem{}}}
	msg := kafkaMessage(t, map[string]any{"system_id": "ghost", "message": "hi"})

	_, ok := c.decode(context.Background(), msg)
	assert.False(t, ok)
}

func TestConsumer_Decode_InactiveSystemIsDropped(t *testing.T) {
	resolver := &fakeSystemResolver{systems: map[string]model.MonitoredSystem{
		"sys-1": {ID: "sys-1", Active: false},
	}}
	c := &Consumer{systems: resolver}
	msg := kafkaMessage(t, map[string]any{"system_id": "sys-1", "message": "hi"})

	_, ok := c.decode(context.Background(), msg)
	assert.False(t, ok)
}

func TestConsumer_Decode_MalformedJSONIsDropped(t *testing.T) {
	c := &Consumer{systems: &fakeSystemResolver{systems: map[string]model.MonitoredSystem{}}}
	msg := kafka.Message{Topic: "events", Value: []byte("not json")}

	_, ok := c.decode(context.Background(), msg)
	assert.False(t, ok)
}

func TestConsumer_Decode_PreservesExplicitTimestamp(t *testing.T) {
	resolver := &fakeSystemResolver{systems: map[string]model.MonitoredSystem{
		"sys-1": {ID: "sys-1", Active: true},
	}}
	c := &Consumer{systems: resolver}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := kafkaMessage(t, map[string]any{
		"system_id": "sys-1",
		"message":   "hi",
		"timestamp": ts.Format(time.RFC3339),
	})

	ev, ok := c.decode(context.Background(), msg)
	require.True(t, ok)
	assert.True(t, ts.Equal(ev.Timestamp))
}

func TestNewConsumer_DefaultsBatchSizeAndFlushInterval(t *testing.T) {
	c := NewConsumer(
		config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "events", GroupID: "loginsight"},
		&fakeSystemResolver{},
		nil,
		0, 0,
	)
	defer c.reader.Close()

	assert.Equal(t, 200, c.batchSize)
	assert.Equal(t, 2*time.Second, c.flushEvery)
}

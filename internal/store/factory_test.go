package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginsight/internal/config"
	"loginsight/internal/model"
)

func TestNewBackendFactory_NoClickHouseAddrLeavesExternalNil(t *testing.T) {
	f, err := NewBackendFactory(context.Background(), nil, config.ClickHouseConfig{})
	require.NoError(t, err)
	assert.Nil(t, f.external)
}

func TestBackendFactory_For_PrimaryAndEmptyResolveToPrimary(t *testing.T) {
	primary := &Postgres{}
	f, err := NewBackendFactory(context.Background(), primary, config.ClickHouseConfig{})
	require.NoError(t, err)

	es, err := f.For(model.MonitoredSystem{EventSource: model.EventSourcePrimary})
	require.NoError(t, err)
	assert.Same(t, primary, es)

	es, err = f.For(model.MonitoredSystem{ID: "sys-1", EventSource: ""})
	require.NoError(t, err)
	assert.Same(t, primary, es)
}

func TestBackendFactory_For_ExternalWithoutClickHouseErrors(t *testing.T) {
	f, err := NewBackendFactory(context.Background(), &Postgres{}, config.ClickHouseConfig{})
	require.NoError(t, err)

	_, err = f.For(model.MonitoredSystem{ID: "sys-1", EventSource: model.EventSourceExternal})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sys-1")
}

func TestBackendFactory_For_UnknownEventSourceErrors(t *testing.T) {
	f, err := NewBackendFactory(context.Background(), &Postgres{}, config.ClickHouseConfig{})
	require.NoError(t, err)

	_, err = f.For(model.MonitoredSystem{ID: "sys-2", EventSource: "bogus"})
	assert.Error(t, err)
}

func TestBackendFactory_Primary_ReturnsWiredStore(t *testing.T) {
	primary := &Postgres{}
	f, err := NewBackendFactory(context.Background(), primary, config.ClickHouseConfig{})
	require.NoError(t, err)
	assert.Same(t, primary, f.Primary())
}

package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewFillsDefaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestInitReplacesGlobal(t *testing.T) {
	require.NoError(t, Init(Config{Level: "debug", Encoding: "console"}))
	first := Get()

	require.NoError(t, Init(Config{Level: "warn"}))
	assert.NotSame(t, first, Get())
}

func TestWithContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), EndpointKey, "postgres://db:5432/app")
	ctx = context.WithValue(ctx, BackendKey, "postgres")

	assert.NotNil(t, WithContext(ctx))
	assert.NotNil(t, WithContext(context.Background()))
}

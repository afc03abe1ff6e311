package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/errors"
)

func TestOptions(t *testing.T) {
	opts, err := Options("redis://:hunter2@cache:6380/3")
	require.NoError(t, err)

	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "hunter2", opts.Password)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 1, opts.PoolSize)
}

func TestOptionsTLS(t *testing.T) {
	opts, err := Options("rediss://cache:6379/0")
	require.NoError(t, err)
	assert.NotNil(t, opts.TLSConfig)
}

func TestOptionsInvalid(t *testing.T) {
	_, err := Options("redis://cache:6379/notanumber")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestCommandArgs(t *testing.T) {
	args := CommandArgs("HSET  user:1", "name", "ada", 42)
	assert.Equal(t, []interface{}{"HSET", "user:1", "name", "ada", 42}, args)

	assert.Empty(t, CommandArgs("   "))
}

func TestRegistered(t *testing.T) {
	assert.True(t, driver.Default().Has(driver.KindRedis))
}

package mongodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ajitpratap0/poolkeeper/pkg/driver"
)

func TestBuildCommand(t *testing.T) {
	cmd, err := BuildCommand(`{"count": "users"}`, "query", bson.M{"active": true})
	require.NoError(t, err)

	require.Len(t, cmd, 2)
	assert.Equal(t, "count", cmd[0].Key)
	assert.Equal(t, "users", cmd[0].Value)
	assert.Equal(t, "query", cmd[1].Key)
}

func TestBuildCommandKeepsOrder(t *testing.T) {
	cmd, err := BuildCommand(`{"find": "orders", "limit": 5, "sort": {"_id": -1}}`)
	require.NoError(t, err)

	keys := make([]string, len(cmd))
	for i, e := range cmd {
		keys[i] = e.Key
	}
	assert.Equal(t, []string{"find", "limit", "sort"}, keys)
}

func TestBuildCommandRejects(t *testing.T) {
	_, err := BuildCommand(`not json`)
	assert.Error(t, err)

	_, err = BuildCommand(`{}`)
	assert.Error(t, err)

	_, err = BuildCommand(`{"ping": 1}`, "dangling")
	assert.Error(t, err)

	_, err = BuildCommand(`{"ping": 1}`, 7, "x")
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	assert.True(t, driver.Default().Has(driver.KindMongoDB))
}

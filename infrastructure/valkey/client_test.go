package valkey

import (
	"testing"

	"github.com/AzielCF/az-engage/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	c := &Client{prefix: "engage"}
	assert.Equal(t, "engage:lock:send:42", c.Key("lock", "send", "42"))
	assert.Equal(t, "engage", c.Key())
	assert.Equal(t, "engage:", c.KeyPrefix())

	bare := &Client{}
	assert.Equal(t, "ws:broadcast", bare.Key("ws:broadcast"))
	assert.Equal(t, "", bare.KeyPrefix())
}

func TestFromConfig_DisabledReturnsNil(t *testing.T) {
	c, err := FromConfig(config.DatabaseConfig{ValkeyEnabled: false})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = FromConfig(config.DatabaseConfig{ValkeyEnabled: true})
	assert.Error(t, err)
}

package valkey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_JoinsUnderPrefix(t *testing.T) {
	c := &Client{keyPrefix: "postsync:"}
	assert.Equal(t, "postsync:schedule:main", c.Key("schedule", "main"))
	assert.Equal(t, "postsync", c.Key())

	bare := &Client{}
	assert.Equal(t, "lock:run", bare.Key("lock", "run"))
}

func TestNewClient_PingsServer(t *testing.T) {
	c, err := NewClient(Config{Address: "localhost:6379", KeyPrefix: "postsync-test"})
	if err != nil {
		t.Skip("No valkey")
	}
	defer c.Close()

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "postsync-test:x", c.Key("x"))
}

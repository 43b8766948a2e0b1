package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveServerID(t *testing.T) {
	assert.Equal(t, "node-a", ResolveServerID(" node-a ", t.TempDir()))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, serverIDFile), []byte(" postsync-saved \n"), 0644))
	assert.Equal(t, "postsync-saved", ResolveServerID("", dir))

	fresh := t.TempDir()
	id := ResolveServerID("", fresh)
	assert.True(t, strings.HasPrefix(id, serverIDPrefix), id)
	assert.Equal(t, id, ResolveServerID("", fresh), "stable across calls")
}

func TestSanitizeHost(t *testing.T) {
	assert.Equal(t, "web-01local", sanitizeHost("Web-01.local"))
	assert.Equal(t, "", sanitizeHost("..."))
}

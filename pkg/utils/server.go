package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	serverIDPrefix = "postsync-"
	serverIDFile   = ".server_id"
)

// ResolveServerID names this process in run reports and as the owner of the
// shared run lock. An explicit override wins, then an ID saved under
// storageDir, then the hostname. Otherwise a random ID is generated and saved
// so restarts keep it.
func ResolveServerID(override, storageDir string) string {
	if id := strings.TrimSpace(override); id != "" {
		return id
	}

	path := filepath.Join(storageDir, serverIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	if host, err := os.Hostname(); err == nil {
		if clean := sanitizeHost(host); clean != "" && clean != "localhost" {
			return serverIDPrefix + clean
		}
	}

	id := serverIDPrefix + uuid.NewString()[:8]
	err := os.MkdirAll(storageDir, 0o755)
	if err == nil {
		err = os.WriteFile(path, []byte(id), 0o644)
	}
	if err != nil {
		logrus.WithError(err).Warnf("[APP] server id %s not saved, the next start picks a new one", id)
	}
	return id
}

// sanitizeHost keeps the characters that are safe inside a valkey key.
func sanitizeHost(host string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, host)
}

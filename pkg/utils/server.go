package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const serverIDFile = ".server_id"

// ServerID names this host in health reports and logs. The first call writes
// "{hostname}-{short uuid}" under dir and later calls read it back; when dir is not
// writable the id is still returned but will change on the next start.
func ServerID(dir string) string {
	path := filepath.Join(dir, serverIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := "engage-" + uuid.NewString()[:8]
	if host := hostSlug(); host != "" {
		id = host + "-" + uuid.NewString()[:8]
	}
	if err := os.MkdirAll(dir, 0o755); err == nil {
		_ = os.WriteFile(path, []byte(id), 0o644)
	}
	return id
}

func hostSlug() string {
	host, err := os.Hostname()
	if err != nil || host == "localhost" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + 'a' - 'A'
		}
		return -1
	}, host)
}

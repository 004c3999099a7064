// Package config loads operator-facing settings: filesystem paths and the
// Google Sheets export credentials.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves the path shorthands accepted in config values
// (database.path, rules.path, passwords.file, archive.dir): a leading ~
// becomes the user's home directory, and $VAR references expand from the
// environment. Unresolvable paths are returned as given so the caller
// surfaces the open error instead.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}

	switch {
	case p == "~":
		if home, err := os.UserHomeDir(); err == nil {
			p = home
		}
	case strings.HasPrefix(p, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}

	return os.ExpandEnv(p)
}

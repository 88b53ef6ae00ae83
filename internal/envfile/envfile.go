// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package envfile loads container environment variables from a directory of
// plain-text files. Each file in the directory represents one variable: the
// filename is the variable name and the file contents (trimmed) are the value.
//
// This keeps per-site values such as DATABASE_NAME out of shell history and
// config files committed to version control.
package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// nameRe matches portable environment variable names. Anything else would
// be passed straight to the runtime as a -e argument, so it is refused here.
var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory is not an error; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading environment directory %s: %w", dir, err)
	}

	env := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !nameRe.MatchString(name) {
			fmt.Fprintf(os.Stderr, "warning: skipping %s: not a valid environment variable name\n", name)
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read env file %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			env[name] = value
		}
	}

	return env, nil
}

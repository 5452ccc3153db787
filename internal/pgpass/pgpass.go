// Package pgpass resolves the database password out of band: either an
// explicit secret from the environment or a pre-authorized local credential
// file in the standard .pgpass format. The password is never embedded in
// artifacts or logs.
package pgpass

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrNoPassword = errors.New("no database password available")

// DefaultPath returns the conventional credential file location
// ($PGPASSFILE, falling back to ~/.pgpass).
func DefaultPath() string {
	if v := strings.TrimSpace(os.Getenv("PGPASSFILE")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pgpass")
}

// FileReadable reports whether a credential file exists and can be opened.
func FileReadable(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// Resolve returns the password for the given connection coordinates.
// An explicit secret wins; otherwise the credential file is consulted.
func Resolve(secret, path, host, port, database, user string) (string, error) {
	if strings.TrimSpace(secret) != "" {
		return secret, nil
	}
	if !FileReadable(path) {
		return "", ErrNoPassword
	}
	pw, ok, err := Lookup(path, host, port, database, user)
	if err != nil {
		return "", err
	}
	if !ok {
		log.Debug().
			Str("action", "pgpass_lookup").
			Str("host", host).
			Str("database", database).
			Msg("no matching credential file entry")
		return "", ErrNoPassword
	}
	return pw, nil
}

// Lookup scans a .pgpass file for the first entry matching
// host:port:database:user (with "*" wildcards) and returns its password.
func Lookup(path, host, port, database, user string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := splitEntry(line)
		if len(fields) != 5 {
			continue
		}
		if match(fields[0], host) && match(fields[1], port) &&
			match(fields[2], database) && match(fields[3], user) {
			return fields[4], true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

// splitEntry splits on unescaped colons; "\:" and "\\" are literal.
func splitEntry(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

func match(pattern, value string) bool {
	return pattern == "*" || pattern == value
}

// Package postgres produces and applies logical database exports by driving
// the canonical client tools as subprocesses. The dump is a transactionally
// consistent plain-SQL stream with ownership and privilege statements
// stripped, so a backup taken by one principal restores under another.
package postgres

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oppidan-dev/pg-backup-restore/internal/config"
	"github.com/oppidan-dev/pg-backup-restore/internal/pgpass"
)

// Test seams — overridden in unit tests to exercise the subprocess plumbing
// without a running database.
var (
	dumpBinary  = "pg_dump"
	applyBinary = "psql"
	dumpArgsFn  = dumpArgs
	applyArgsFn = applyArgs
)

// Dump streams a logical export of the profile's database into w. A non-zero
// exit status is an error even if bytes were produced: partial output must
// never be treated as a valid snapshot.
func Dump(ctx context.Context, profile config.ConnectionProfile, w io.Writer) error {
	args := dumpArgsFn(profile)

	start := time.Now()
	log.Info().
		Str("action", "pg_dump").
		Str("host", profile.Host).
		Str("database", profile.Database).
		Msg("starting export")

	cmd := exec.CommandContext(ctx, dumpBinary, args...)
	cmd.Env = credentialEnv(profile)
	cmd.Stdout = w
	stderr := &tailBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Str("action", "pg_dump").
			Str("database", profile.Database).
			Dur("elapsed_ms", time.Since(start)).
			Msg("export failed")
		return commandError(dumpBinary, err, stderr)
	}

	log.Info().
		Str("action", "pg_dump").
		Str("database", profile.Database).
		Dur("elapsed_ms", time.Since(start)).
		Msg("export OK")
	return nil
}

// Apply replays a plain-SQL export from r against the profile's database,
// in stream order, as a single transaction. ON_ERROR_STOP makes any error
// anywhere in the stream abort the run; a partially applied restore is
// tainted state the operator must rebuild from scratch.
func Apply(ctx context.Context, profile config.ConnectionProfile, r io.Reader) error {
	args := applyArgsFn(profile)

	start := time.Now()
	log.Info().
		Str("action", "psql_apply").
		Str("host", profile.Host).
		Str("database", profile.Database).
		Msg("starting restore apply")

	cmd := exec.CommandContext(ctx, applyBinary, args...)
	cmd.Env = credentialEnv(profile)
	cmd.Stdin = r
	stderr := &tailBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Str("action", "psql_apply").
			Str("database", profile.Database).
			Dur("elapsed_ms", time.Since(start)).
			Msg("restore apply failed")
		return commandError(applyBinary, err, stderr)
	}

	log.Info().
		Str("action", "psql_apply").
		Str("database", profile.Database).
		Dur("elapsed_ms", time.Since(start)).
		Msg("restore apply OK")
	return nil
}

func dumpArgs(p config.ConnectionProfile) []string {
	return []string{
		"--host", p.Host,
		"--port", p.Port,
		"--username", p.User,
		"--no-password",
		// Strip ownership and privilege statements: exports restore under
		// any authorized role, not only the original owner.
		"--no-owner",
		"--no-acl",
		p.Database,
	}
}

func applyArgs(p config.ConnectionProfile) []string {
	return []string{
		"--host", p.Host,
		"--port", p.Port,
		"--username", p.User,
		"--no-password",
		"--quiet",
		"--set", "ON_ERROR_STOP=1",
		"--single-transaction",
		p.Database,
	}
}

// credentialEnv passes the resolved secret to the subprocess without ever
// putting it on the command line. When only a credential file is available
// the client tools read it themselves via PGPASSFILE.
func credentialEnv(p config.ConnectionProfile) []string {
	env := os.Environ()
	if p.PassFile != "" {
		env = append(env, "PGPASSFILE="+p.PassFile)
	}
	if pw, err := pgpass.Resolve(p.Password, p.PassFile, p.Host, p.Port, p.Database, p.User); err == nil {
		env = append(env, "PGPASSWORD="+pw)
	}
	return env
}

func commandError(binary string, err error, stderr *tailBuffer) error {
	if msg := stderr.String(); msg != "" {
		return fmt.Errorf("%s: %w: %s", binary, err, msg)
	}
	return fmt.Errorf("%s: %w", binary, err)
}

// tailBuffer keeps the last few KiB of subprocess stderr for diagnostics
// without letting a chatty tool grow memory unboundedly.
type tailBuffer struct {
	buf []byte
}

const tailLimit = 8 * 1024

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailLimit {
		t.buf = t.buf[len(t.buf)-tailLimit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}

package postgres

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/oppidan-dev/pg-backup-restore/internal/config"
)

func testProfile(t *testing.T) config.ConnectionProfile {
	t.Helper()
	return config.ConnectionProfile{
		Host:     "db.example.com",
		Port:     "5432",
		User:     "app",
		Database: "orders",
		Password: "pw",
		PassFile: filepath.Join(t.TempDir(), "absent"),
	}
}

func TestDumpArgs(t *testing.T) {
	args := dumpArgs(testProfile(t))

	// Ownership and privilege statements must be stripped from exports.
	for _, want := range []string{"--no-owner", "--no-acl", "--no-password"} {
		if !slices.Contains(args, want) {
			t.Errorf("dump args missing %s: %v", want, args)
		}
	}
	if args[len(args)-1] != "orders" {
		t.Fatalf("database must be the final argument, got %v", args)
	}
}

func TestApplyArgs(t *testing.T) {
	args := applyArgs(testProfile(t))

	// Any error anywhere in the stream aborts, inside one transaction.
	if !slices.Contains(args, "ON_ERROR_STOP=1") {
		t.Fatalf("apply args missing ON_ERROR_STOP: %v", args)
	}
	if !slices.Contains(args, "--single-transaction") {
		t.Fatalf("apply args missing --single-transaction: %v", args)
	}
	if args[len(args)-1] != "orders" {
		t.Fatalf("database must be the final argument, got %v", args)
	}
}

func TestCredentialEnvNeverOnCommandLine(t *testing.T) {
	p := testProfile(t)
	for _, arg := range append(dumpArgs(p), applyArgs(p)...) {
		if strings.Contains(arg, "pw") {
			t.Fatalf("secret leaked into command line: %v", arg)
		}
	}

	env := credentialEnv(p)
	if !slices.Contains(env, "PGPASSWORD=pw") {
		t.Fatal("expected resolved password in subprocess env")
	}
	if !slices.Contains(env, "PGPASSFILE="+p.PassFile) {
		t.Fatal("expected credential file path in subprocess env")
	}
}

func TestCredentialEnvWithoutSecret(t *testing.T) {
	p := testProfile(t)
	p.Password = ""
	for _, v := range credentialEnv(p) {
		if v == "PGPASSWORD=" {
			t.Fatal("must not set an empty PGPASSWORD")
		}
	}
}

// Swap the binaries for stand-ins to exercise the subprocess plumbing
// without a running database.
func TestDumpStreamsStdout(t *testing.T) {
	prev := dumpBinary
	dumpBinary = "sh"
	defer func() { dumpBinary = prev }()

	p := testProfile(t)
	// sh ignores the pg_dump flags; it only needs to emit bytes on stdout.
	prevArgs := dumpArgsFn
	dumpArgsFn = func(config.ConnectionProfile) []string {
		return []string{"-c", "printf 'CREATE TABLE t ();'"}
	}
	defer func() { dumpArgsFn = prevArgs }()

	var out bytes.Buffer
	if err := Dump(context.Background(), p, &out); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if out.String() != "CREATE TABLE t ();" {
		t.Fatalf("stdout not streamed: %q", out.String())
	}
}

func TestDumpFailureCarriesStderr(t *testing.T) {
	prev := dumpBinary
	dumpBinary = "sh"
	defer func() { dumpBinary = prev }()

	prevArgs := dumpArgsFn
	dumpArgsFn = func(config.ConnectionProfile) []string {
		return []string{"-c", "echo 'connection refused' >&2; exit 1"}
	}
	defer func() { dumpArgsFn = prevArgs }()

	err := Dump(context.Background(), testProfile(t), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error from failing dump")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("stderr tail missing from error: %v", err)
	}
}

func TestApplyReadsStdin(t *testing.T) {
	prev := applyBinary
	applyBinary = "sh"
	defer func() { applyBinary = prev }()

	sink := filepath.Join(t.TempDir(), "applied.sql")
	prevArgs := applyArgsFn
	applyArgsFn = func(config.ConnectionProfile) []string {
		return []string{"-c", "cat > " + sink}
	}
	defer func() { applyArgsFn = prevArgs }()

	input := "INSERT INTO orders VALUES (1);"
	if err := Apply(context.Background(), testProfile(t), strings.NewReader(input)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := os.ReadFile(sink)
	if err != nil {
		t.Fatalf("read sink: %v", err)
	}
	if string(got) != input {
		t.Fatalf("stdin not streamed: %q", got)
	}
}

func TestTailBufferKeepsTail(t *testing.T) {
	tb := &tailBuffer{}
	if _, err := tb.Write(bytes.Repeat([]byte("x"), tailLimit)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := tb.Write([]byte("the end")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(tb.buf) > tailLimit {
		t.Fatalf("buffer grew past limit: %d", len(tb.buf))
	}
	if !strings.HasSuffix(tb.String(), "the end") {
		t.Fatalf("tail lost: %q", tb.String())
	}
}

package retention

import (
	"os"
	"path/filepath"
	"testing"
)

func runDir(t *testing.T) (parent, dir string) {
	t.Helper()
	parent = t.TempDir()
	dir = filepath.Join(parent, "run-01-06-2025_02:00")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "orders.sql.gz"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return parent, dir
}

func TestDeleteOnSuccessKeepsNothing(t *testing.T) {
	_, dir := runDir(t)
	p := Policy{OnSuccess: Delete, OnFailure: Keep}
	if err := p.Apply(dir, true); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("expected run directory to be removed")
	}
}

func TestKeepOnFailurePreservesArtifact(t *testing.T) {
	_, dir := runDir(t)
	p := Policy{OnSuccess: Delete, OnFailure: Keep}
	if err := p.Apply(dir, false); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "orders.sql.gz")); err != nil {
		t.Fatalf("expected artifact to survive a failed run: %v", err)
	}
}

// Cleanup scope is exactly the run directory: siblings from other runs are
// never touched.
func TestDeleteScopeIsRunDirOnly(t *testing.T) {
	parent, dir := runDir(t)
	sibling := filepath.Join(parent, "run-02-06-2025_02:00")
	if err := os.MkdirAll(sibling, 0o755); err != nil {
		t.Fatalf("mkdir sibling: %v", err)
	}

	p := Policy{OnSuccess: Delete, OnFailure: Delete}
	if err := p.Apply(dir, false); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := os.Stat(sibling); err != nil {
		t.Fatalf("sibling run directory must survive: %v", err)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	_, dir := runDir(t)
	p := Policy{OnSuccess: Delete, OnFailure: Delete}
	if err := p.Apply(dir, true); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := p.Apply(dir, true); err != nil {
		t.Fatalf("second apply must be a no-op: %v", err)
	}
}

func TestParseAction(t *testing.T) {
	if ParseAction("delete", Keep) != Delete {
		t.Fatal("want Delete")
	}
	if ParseAction("keep", Delete) != Keep {
		t.Fatal("want Keep")
	}
	if ParseAction("purge", Keep) != Keep {
		t.Fatal("unknown token must fall back to default")
	}
}

package lease

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClaimOwnerWritesIdentity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := ClaimOwner(dir, "node/a b")
	if err != nil {
		t.Fatalf("ClaimOwner: %v", err)
	}
	t.Cleanup(func() { _ = c.Release() })

	if got := filepath.Base(c.Path()); got != "node_a_b.owner" {
		t.Fatalf("path = %s, want node_a_b.owner", got)
	}
	b, err := os.ReadFile(c.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), "owner=node/a b\n") || !strings.Contains(string(b), "pid=") {
		t.Fatalf("unexpected owner file contents: %q", b)
	}
}

func TestClaimOwnerRejectsSecondHolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := ClaimOwner(dir, "node-a")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}

	if _, err := ClaimOwner(dir, "node-a"); !errors.Is(err, ErrOwnerInUse) {
		t.Fatalf("second claim err = %v, want ErrOwnerInUse", err)
	}

	other, err := ClaimOwner(dir, "node-b")
	if err != nil {
		t.Fatalf("other owner: %v", err)
	}
	_ = other.Release()

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := ClaimOwner(dir, "node-a")
	if err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	_ = again.Release()
}

func TestClaimOwnerRequiresOwner(t *testing.T) {
	t.Parallel()

	if _, err := ClaimOwner(t.TempDir(), ""); err == nil {
		t.Fatal("expected error for empty owner")
	}
	var c *OwnerClaim
	if err := c.Release(); err != nil {
		t.Fatalf("nil Release: %v", err)
	}
}

package lease

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"syscall"
)

// ErrOwnerInUse means another process on this host already runs with the
// same owner identity.
var ErrOwnerInUse = errors.New("owner identity already in use on this host")

var unsafeOwnerChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// OwnerClaim holds an flock(2) on a per-owner file. Two processes sharing a
// configured owner would each believe they hold the other's leases, so
// explicit owners are claimed before any lease is requested. The claim lasts
// as long as the file descriptor stays open.
type OwnerClaim struct {
	path string
	f    *os.File
}

// ClaimOwner locks <dir>/<owner>.owner and writes the owner and PID into it.
func ClaimOwner(dir, owner string) (*OwnerClaim, error) {
	if owner == "" {
		return nil, fmt.Errorf("claim owner: owner is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create owner directory: %w", err)
	}

	path := filepath.Join(dir, unsafeOwnerChars.ReplaceAllString(owner, "_")+".owner")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open owner file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrOwnerInUse, owner, path)
		}
		return nil, fmt.Errorf("lock owner file: %w", err)
	}

	c := &OwnerClaim{path: path, f: f}
	if err := c.write(owner); err != nil {
		_ = c.Release()
		return nil, err
	}
	return c, nil
}

func (c *OwnerClaim) write(owner string) error {
	if err := c.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate owner file: %w", err)
	}
	if _, err := c.f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek owner file: %w", err)
	}
	if _, err := fmt.Fprintf(c.f, "owner=%s\npid=%d\n", owner, os.Getpid()); err != nil {
		return fmt.Errorf("write owner file: %w", err)
	}
	return c.f.Sync()
}

func (c *OwnerClaim) Path() string { return c.path }

func (c *OwnerClaim) Release() error {
	if c == nil || c.f == nil {
		return nil
	}
	_ = syscall.Flock(int(c.f.Fd()), syscall.LOCK_UN)
	err := c.f.Close()
	c.f = nil
	return err
}

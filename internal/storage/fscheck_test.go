package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckFilesystemWithDetector_AllowsLocalFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "executions.db")
	fsType, err := checkFilesystemWithDetector(dbPath, func(path string) (string, error) {
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
	if fsType != "ext4" {
		t.Fatalf("fsType = %q, want ext4", fsType)
	}
}

func TestCheckFilesystemWithDetector_RejectsNetworkFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "executions.db")
	_, err := checkFilesystemWithDetector(dbPath, func(path string) (string, error) {
		return "nfs", nil
	})
	if err == nil {
		t.Fatal("expected network filesystem validation error")
	}
	if !errors.Is(err, ErrNetworkFilesystem) {
		t.Fatalf("expected ErrNetworkFilesystem, got %v", err)
	}
	for _, want := range []string{"nfs", "state.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to contain %q, got %q", want, err.Error())
		}
	}
}

func TestCheckFilesystemWithDetector_UsesNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "executions.db")

	var inspectedPath string
	_, err := checkFilesystemWithDetector(dbPath, func(path string) (string, error) {
		inspectedPath = path
		return "apfs", nil
	})
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
	if inspectedPath != root {
		t.Fatalf("expected detector to inspect nearest existing path %q, got %q", root, inspectedPath)
	}
}

func TestCheckFilesystemWithDetector_PropagatesDetectorError(t *testing.T) {
	t.Parallel()

	_, err := checkFilesystemWithDetector(filepath.Join(t.TempDir(), "x.db"), func(string) (string, error) {
		return "", errors.ErrUnsupported
	})
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("expected wrapped ErrUnsupported, got %v", err)
	}
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fs   string
		want bool
	}{
		{name: "nfs", fs: "nfs", want: true},
		{name: "smbfs uppercase", fs: "SMBFS", want: true},
		{name: "9p", fs: "9p", want: true},
		{name: "local ext4", fs: "ext4", want: false},
		{name: "hex linux magic", fs: "0x6969", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := isNetworkFilesystem(tc.fs); got != tc.want {
				t.Fatalf("isNetworkFilesystem(%q)=%v, want %v", tc.fs, got, tc.want)
			}
		})
	}
}

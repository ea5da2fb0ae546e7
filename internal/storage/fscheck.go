package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned when the execution store would live on a
// filesystem whose byte-range locking cannot be trusted.
var ErrNetworkFilesystem = errors.New("execution store is on a network filesystem")

var networkFilesystems = map[string]struct{}{
	"9p":     {},
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// CheckLocalFilesystem reports the filesystem type backing path and fails
// with ErrNetworkFilesystem when it is a network mount.
func CheckLocalFilesystem(path string) (string, error) {
	return checkFilesystemWithDetector(path, detectFilesystemType)
}

func checkFilesystemWithDetector(path string, detector func(string) (string, error)) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sqlite path is empty")
	}

	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := detector(inspectPath)
	if err != nil {
		return "", fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}

	if isNetworkFilesystem(fsType) {
		return fsType, fmt.Errorf(
			"%w: %q is on %q; every instance writes execution records here and SQLite needs a local disk for its locks (set state.path)",
			ErrNetworkFilesystem, path, fsType,
		)
	}
	return fsType, nil
}

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	candidate := absPath
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.TrimSpace(strings.ToLower(fsType))]
	return found
}

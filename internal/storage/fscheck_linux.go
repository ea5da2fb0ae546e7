//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// statfs(2) f_type values for the mounts we care about.
const (
	magicNFS  = 0x6969
	magicCIFS = 0xFF534D42
	magicSMB  = 0x517B
	magicSMB2 = 0xFE534D42
	magic9P   = 0x01021997
	magicExt4 = 0xEF53
	magicTmp  = 0x01021994
)

func detectFilesystemType(path string) (string, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}

	switch uint64(stat.Type) {
	case magicNFS:
		return "nfs", nil
	case magicCIFS:
		return "cifs", nil
	case magicSMB:
		return "smbfs", nil
	case magicSMB2:
		return "smb2", nil
	case magic9P:
		return "9p", nil
	case magicExt4:
		return "ext4", nil
	case magicTmp:
		return "tmpfs", nil
	default:
		return fmt.Sprintf("0x%x", uint64(stat.Type)), nil
	}
}

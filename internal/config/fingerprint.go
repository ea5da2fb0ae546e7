package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Fingerprint hashes the settings every instance sharing a lock namespace
// must agree on: the job set and the lease timing. Instances log it at
// startup so a mismatched rollout is visible.
func (c *Config) Fingerprint() string {
	jobs := append([]string(nil), c.Jobs...)
	sort.Strings(jobs)

	h := blake3.New()
	fmt.Fprintf(h, "jobs=%s\n", strings.Join(jobs, ","))
	fmt.Fprintf(h, "backend=%s\n", c.Lock.Backend)
	fmt.Fprintf(h, "lease=%s\n", c.Lock.LeaseDuration)
	fmt.Fprintf(h, "heartbeat=%s\n", c.Lock.HeartbeatPeriod)
	fmt.Fprintf(h, "grace=%s\n", c.EffectiveReapGrace())

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Package config loads the multiplexer's tunable parameters. Unlike the
// upstream relay this is derived from, the EVS core has no required
// external credentials — Default() covers normal operation, and Load lets
// an operator override the tunables spec.md calls out as "must be a
// tunable constant" without recompiling.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable named by spec.md as a design parameter rather
// than a hardware query.
type Config struct {
	// SyncThreshold is spec.md's SYNC_THRESHOLD: a fenced request whose
	// buffer timestamp gap is smaller than this is re-queued instead of
	// satisfied, on the theory that the client explicitly asked for a
	// newer frame than it already has.
	SyncThreshold time.Duration

	// DefaultBufferBudget is the allowedBuffers a VirtualCamera is created
	// with when the client does not request a specific count.
	DefaultBufferBudget uint32

	// ParamWriteQPS rate-limits setParameter calls reaching the hardware,
	// so a chatty master can't thrash the ISP with writes.
	ParamWriteQPS float64

	// PoolRenegotiateQPS rate-limits changeFramesInFlight calls reaching
	// the hardware.
	PoolRenegotiateQPS float64

	// FenceSupported declares whether the underlying hardware camera
	// supports fence-based synchronized delivery. When false, every client
	// is registered in pull mode and requestNextFrame always fails with
	// SyncUnsupported — there is no point trying a timeline the hardware
	// can't back.
	FenceSupported bool
}

// Default returns the configuration used when no override file is given.
func Default() *Config {
	return &Config{
		SyncThreshold:       16 * time.Millisecond,
		DefaultBufferBudget: 2,
		ParamWriteQPS:       20.0,
		PoolRenegotiateQPS:  5.0,
		FenceSupported:      true,
	}
}

// Load reads tunable overrides from a .env-style file on top of Default().
// Unrecognized keys are ignored; this mirrors the teacher's permissive
// key=value scanner.
func Load(envPath string) (*Config, error) {
	file, err := os.Open(envPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "sync_threshold_ms":
			ms, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("parse sync_threshold_ms: %w", err)
			}
			cfg.SyncThreshold = time.Duration(ms) * time.Millisecond
		case "default_buffer_budget":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("parse default_buffer_budget: %w", err)
			}
			cfg.DefaultBufferBudget = uint32(n)
		case "param_write_qps":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("parse param_write_qps: %w", err)
			}
			cfg.ParamWriteQPS = f
		case "pool_renegotiate_qps":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("parse pool_renegotiate_qps: %w", err)
			}
			cfg.PoolRenegotiateQPS = f
		case "fence_supported":
			cfg.FenceSupported = value == "true" || value == "1"
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every tunable is within a sane range.
func (c *Config) Validate() error {
	if c.SyncThreshold <= 0 {
		return fmt.Errorf("sync_threshold_ms must be positive")
	}
	if c.DefaultBufferBudget < 1 {
		return fmt.Errorf("default_buffer_budget must be at least 1")
	}
	if c.ParamWriteQPS <= 0 {
		return fmt.Errorf("param_write_qps must be positive")
	}
	if c.PoolRenegotiateQPS <= 0 {
		return fmt.Errorf("pool_renegotiate_qps must be positive")
	}
	return nil
}

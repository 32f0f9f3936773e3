// Package config loads gateway configuration from environment variables.
// There is no config-file format and no flag-parsing framework: the
// gateway is a stdio tool launched by another process, and every knob it
// needs fits in a handful of env vars, namespaced by Namespace.
package config

import (
	"os"
	"strconv"
)

// Config holds every environment-sourced knob the gateway reads at startup.
type Config struct {
	// Namespace prefixes every env var below and names the on-disk
	// `.<namespace>/` directory under the workspace root.
	Namespace string

	LogLevel string

	// Fatigue guard limits (write gate stage 11).
	FatigueConsecutiveLimit int
	FatigueSessionLimit     int

	// Soft deadlines for the policy engine and post-write verification.
	PolicyEngineDeadlineSeconds      int
	PostWriteVerificationDeadlineSeconds int

	// Stale-lock reclaim threshold for the audit-append lock.
	StaleLockThresholdSeconds int

	// Minimum delay between recovery initiation and confirmation.
	RecoveryMinDelaySeconds int

	BootstrapSecret    string
	AttestationSecret  string

	// Optional backend selectors; empty/"fs" means disabled/local.
	AuditLockRedisAddr string
	AttestationStore   string // "fs" (default), "s3", "gcs"
}

// Load reads configuration from the environment, applying defaults for
// every field whose variable is unset. namespace is the gateway's fixed
// namespace identifier (e.g. "gatekeeper"), used both as the env var
// prefix and as the on-disk directory name.
func Load(namespace string) *Config {
	prefix := envName(namespace)

	return &Config{
		Namespace:                            namespace,
		LogLevel:                             getEnvDefault(prefix+"_LOG_LEVEL", "info"),
		FatigueConsecutiveLimit:              getEnvIntDefault(prefix+"_FATIGUE_CONSECUTIVE_LIMIT", 10),
		FatigueSessionLimit:                  getEnvIntDefault(prefix+"_FATIGUE_SESSION_LIMIT", 50),
		PolicyEngineDeadlineSeconds:          getEnvIntDefault(prefix+"_POLICY_DEADLINE_SECONDS", 30),
		PostWriteVerificationDeadlineSeconds: getEnvIntDefault(prefix+"_POSTWRITE_DEADLINE_SECONDS", 60),
		StaleLockThresholdSeconds:            getEnvIntDefault(prefix+"_STALE_LOCK_SECONDS", 10),
		RecoveryMinDelaySeconds:              getEnvIntDefault(prefix+"_RECOVERY_MIN_DELAY_SECONDS", 30),
		BootstrapSecret:                      os.Getenv(prefix + "_BOOTSTRAP_SECRET"),
		AttestationSecret:                    os.Getenv(prefix + "_ATTESTATION_SECRET"),
		AuditLockRedisAddr:                   os.Getenv(prefix + "_AUDIT_LOCK_REDIS_ADDR"),
		AttestationStore:                     getEnvDefault(prefix+"_ATTESTATION_STORE", "fs"),
	}
}

func envName(namespace string) string {
	out := make([]byte, len(namespace))
	for i := 0; i < len(namespace); i++ {
		c := namespace[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

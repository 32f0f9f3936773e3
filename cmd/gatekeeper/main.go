// Command gatekeeper is the gateway's process entrypoint: a line-
// delimited JSON-RPC 2.0 stdio tool server. Run takes its streams as
// arguments and returns an exit code so tests can drive the full loop
// in-process.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Mindburn-Labs/gatekeeper/internal/config"
	"github.com/Mindburn-Labs/gatekeeper/internal/logging"
	"github.com/Mindburn-Labs/gatekeeper/pkg/attestation"
	"github.com/Mindburn-Labs/gatekeeper/pkg/auditlog"
	"github.com/Mindburn-Labs/gatekeeper/pkg/dispatch"
	"github.com/Mindburn-Labs/gatekeeper/pkg/gateerr"
	"github.com/Mindburn-Labs/gatekeeper/pkg/session"
	"github.com/Mindburn-Labs/gatekeeper/pkg/workspace"
)

// namespace names the on-disk `.<namespace>/` directory and the env var
// prefix every gateway knob is read under.
const namespace = "gatekeeper"

func main() {
	os.Exit(Run(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint: it builds the Gateway from environment
// configuration, registers the tool surface, and runs the stdio dispatch
// loop until stdin closes.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 1 && (args[1] == "help" || args[1] == "--help" || args[1] == "-h") {
		printUsage(stdout)
		return 0
	}

	cfg := config.Load(namespace)
	logger := logging.New(stderr, cfg.LogLevel)

	gw, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		printStartupFailure(stderr, err)
		return 1
	}

	reg, err := gw.Registry(ctx)
	if err != nil {
		printStartupFailure(stderr, err)
		return 1
	}

	if err := dispatch.Loop(stdin, stdout, reg, logger); err != nil {
		fmt.Fprintf(stderr, "gatekeeper: dispatch loop ended: %v\n", err)
		return 1
	}
	return 0
}

// buildGateway wires every environment-sourced knob into a fresh
// Gateway. The workspace root itself is not resolved here: it arrives
// with the first begin_session call, per INV_ROOT_LOCKED_ONCE.
func buildGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*dispatch.Gateway, error) {
	gw := dispatch.New(cfg.Namespace, logger)

	gw.BootstrapSecret = decodeSecret(cfg.BootstrapSecret)
	gw.AttestationSecret = []byte(cfg.AttestationSecret)
	gw.RecoveryMinDelay = time.Duration(cfg.RecoveryMinDelaySeconds) * time.Second
	gw.StaleLockThreshold = time.Duration(cfg.StaleLockThresholdSeconds) * time.Second
	gw.FatigueLimits.ConsecutiveLimit = cfg.FatigueConsecutiveLimit
	gw.FatigueLimits.SessionLimit = cfg.FatigueSessionLimit

	gw.Prompts = dispatch.StaticPrompts{
		session.PromptPlannerCanonical:  plannerPromptText,
		session.PromptExecutorCanonical: executorPromptText,
	}

	if cfg.AuditLockRedisAddr != "" {
		gw.LockerFactory = func(resolver *workspace.Resolver) auditlog.Locker {
			return auditlog.NewRedisLocker(cfg.AuditLockRedisAddr, "gatekeeper:audit-lock:"+resolver.Root())
		}
	}

	store, err := buildAttestationStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gw.AttestationStore = store

	return gw, nil
}

func buildAttestationStore(ctx context.Context, cfg *config.Config) (attestation.Store, error) {
	switch cfg.AttestationStore {
	case "", "fs":
		return nil, nil
	case "s3":
		bucket := os.Getenv("GATEKEEPER_ATTESTATION_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("GATEKEEPER_ATTESTATION_S3_BUCKET is required when GATEKEEPER_ATTESTATION_STORE=s3")
		}
		return attestation.NewS3Store(ctx, attestation.S3StoreConfig{
			Bucket:   bucket,
			Region:   os.Getenv("GATEKEEPER_ATTESTATION_S3_REGION"),
			Endpoint: os.Getenv("GATEKEEPER_ATTESTATION_S3_ENDPOINT"),
			Prefix:   os.Getenv("GATEKEEPER_ATTESTATION_S3_PREFIX"),
		})
	case "gcs":
		return buildGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown GATEKEEPER_ATTESTATION_STORE: %q (want fs, s3, or gcs)", cfg.AttestationStore)
	}
}

// decodeSecret interprets an env-supplied secret as standard base64,
// falling back to the raw bytes for a value that is not valid base64.
func decodeSecret(v string) []byte {
	if v == "" {
		return nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded
	}
	return []byte(v)
}

// printStartupFailure writes the refusal-to-boot reason to stderr as a
// single JSON line carrying the failing invariant id.
func printStartupFailure(w io.Writer, err error) {
	line, _ := json.Marshal(map[string]string{
		"invariant_id": string(gateerr.CodeStartupSelfAuditFailed),
		"error":        err.Error(),
	})
	fmt.Fprintln(w, string(line))
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "gatekeeper: governance gateway for AI-agent filesystem mutations")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: gatekeeper")
	fmt.Fprintln(w, "  Runs the line-delimited JSON-RPC 2.0 tool server on stdin/stdout.")
	fmt.Fprintln(w, "  Configuration is read entirely from GATEKEEPER_* environment")
	fmt.Fprintln(w, "  variables; see internal/config and cmd/gatekeeper for the full list.")
}

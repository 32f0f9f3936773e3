//go:build !gcp

package main

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/gatekeeper/internal/config"
	"github.com/Mindburn-Labs/gatekeeper/pkg/attestation"
)

// buildGCSStore is the default (non-gcp-tagged) stand-in: GCS support
// requires building with -tags gcp, matching attestation.GCSStore's own
// build tag.
func buildGCSStore(ctx context.Context, cfg *config.Config) (attestation.Store, error) {
	return nil, fmt.Errorf("GATEKEEPER_ATTESTATION_STORE=gcs requires building gatekeeper with -tags gcp")
}

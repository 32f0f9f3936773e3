//go:build gcp

package main

import (
	"context"
	"os"

	"github.com/Mindburn-Labs/gatekeeper/internal/config"
	"github.com/Mindburn-Labs/gatekeeper/pkg/attestation"
)

// buildGCSStore wires the GCS attestation backend, available only when
// built with -tags gcp, matching attestation.GCSStore's own build tag.
func buildGCSStore(ctx context.Context, cfg *config.Config) (attestation.Store, error) {
	bucket := os.Getenv("GATEKEEPER_ATTESTATION_GCS_BUCKET")
	if bucket == "" {
		return nil, os.ErrInvalid
	}
	return attestation.NewGCSStore(ctx, attestation.GCSStoreConfig{
		Bucket: bucket,
		Prefix: os.Getenv("GATEKEEPER_ATTESTATION_GCS_PREFIX"),
	})
}

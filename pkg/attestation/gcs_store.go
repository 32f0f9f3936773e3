//go:build gcp

package attestation

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore persists attestation tokens to a Google Cloud Storage bucket
// using application-default credentials, with an optional key prefix.
// Built only under the "gcp" tag so default builds carry no GCP client.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig configures a GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore constructs a GCSStore using application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("attestation: create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) Put(ctx context.Context, bundleHash string, token []byte) error {
	obj := s.client.Bucket(s.bucket).Object(s.prefix + bundleHash + ".jwt")
	w := obj.NewWriter(ctx)
	w.ContentType = "application/jwt"
	if _, err := w.Write(token); err != nil {
		_ = w.Close()
		return fmt.Errorf("attestation: gcs write: %w", err)
	}
	return w.Close()
}

func (s *GCSStore) Get(ctx context.Context, bundleHash string) ([]byte, error) {
	obj := s.client.Bucket(s.bucket).Object(s.prefix + bundleHash + ".jwt")
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("attestation: gcs read: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

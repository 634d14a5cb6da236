package objectstore

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/hook0/webhooks-core/pb"
)

// GCSStore offloads blobs to a Google Cloud Storage bucket, the same
// cloud.google.com/go client family the dispatch queue already depends on
// for Pub/Sub and Cloud Tasks.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Put(ctx context.Context, blob *pb.Blob) (string, error) {
	key := KeyFor(blob.Body)
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(pb.EncodeBlob(blob)); err != nil {
		w.Close()
		return "", fmt.Errorf("objectstore: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("objectstore: gcs close: %w", err)
	}
	return key, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) (*pb.Blob, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: gcs read: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("objectstore: gcs read body: %w", err)
	}
	return pb.DecodeBlob(data)
}

var _ Store = (*GCSStore)(nil)

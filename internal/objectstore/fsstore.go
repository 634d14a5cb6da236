package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hook0/webhooks-core/pb"
)

// FSStore offloads blobs to a local directory. Used for local development
// and tests, mirroring the in-process MemQueue fallback pattern used when
// no managed GCP backend is configured.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create local dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Put(_ context.Context, blob *pb.Blob) (string, error) {
	key := KeyFor(blob.Body)
	path := filepath.Join(s.dir, key)
	if err := os.WriteFile(path, pb.EncodeBlob(blob), 0o644); err != nil {
		return "", fmt.Errorf("objectstore: write local blob: %w", err)
	}
	return key, nil
}

func (s *FSStore) Get(_ context.Context, key string) (*pb.Blob, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if err != nil {
		return nil, fmt.Errorf("objectstore: read local blob: %w", err)
	}
	return pb.DecodeBlob(data)
}

var _ Store = (*FSStore)(nil)

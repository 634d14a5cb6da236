package objectstore

import (
	"context"

	"github.com/hook0/webhooks-core/internal/config"
)

// Build selects the GCS backend when a bucket is configured, otherwise the
// local filesystem backend.
func Build(ctx context.Context, cfg config.ObjectStoreConfig) (Store, error) {
	if cfg.GCSBucket != "" {
		return NewGCSStore(ctx, cfg.GCSBucket)
	}
	return NewFSStore(cfg.LocalDir)
}

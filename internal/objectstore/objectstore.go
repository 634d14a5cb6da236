// Package objectstore implements the C9 response/payload offload: when a
// captured response body exceeds DeliveryConfig.ObjectStoreThreshold, the
// worker writes a protobuf-wrapped {body, headers} blob here under a
// content-addressed key instead of inlining it in the Response row.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/hook0/webhooks-core/pb"
)

// Store is the backend-agnostic blob offload interface. Both
// implementations key blobs by their content hash, so repeated writes of
// an identical body are idempotent no-ops in all but the filesystem
// backend's atomicity guarantees.
type Store interface {
	Put(ctx context.Context, blob *pb.Blob) (key string, err error)
	Get(ctx context.Context, key string) (*pb.Blob, error)
}

// KeyFor derives the content-addressed key the worker passes to
// Response.ObjectStoreKey.
func KeyFor(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

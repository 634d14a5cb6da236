package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hook0/webhooks-core/pb"
)

func TestFSStorePutGetRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	blob := &pb.Blob{
		Body:    []byte(`{"large":"response body"}`),
		Headers: map[string]string{"content-type": "application/json"},
	}

	key, err := store.Put(context.Background(), blob)
	require.NoError(t, err)
	assert.Equal(t, KeyFor(blob.Body), key)

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, blob.Body, got.Body)
	assert.Equal(t, blob.Headers, got.Headers)
}

func TestFSStoreGetMissingKeyErrors(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStoragePutAndGetWebhooks(t *testing.T) {
	s := NewStorage(10)
	s.PutWebhook("c_tok", &StoredWebhook{ID: "1", Method: "POST", ReceivedAt: time.Now(), Status: "pending"})

	got := s.GetWebhooks("c_tok")
	assert.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestStorageFIFOEviction(t *testing.T) {
	s := NewStorage(2)
	s.PutWebhook("c_tok", &StoredWebhook{ID: "1", ReceivedAt: time.Now()})
	s.PutWebhook("c_tok", &StoredWebhook{ID: "2", ReceivedAt: time.Now()})
	s.PutWebhook("c_tok", &StoredWebhook{ID: "3", ReceivedAt: time.Now()})

	got := s.GetWebhooks("c_tok")
	assert.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestStorageDeleteWebhook(t *testing.T) {
	s := NewStorage(10)
	s.PutWebhook("c_tok", &StoredWebhook{ID: "1", ReceivedAt: time.Now()})
	assert.True(t, s.DeleteWebhook("c_tok", "1"))
	assert.False(t, s.DeleteWebhook("c_tok", "1"))
	assert.Len(t, s.GetWebhooks("c_tok"), 0)
}

func TestStorageCleanupExpired(t *testing.T) {
	s := NewStorage(10)
	s.PutWebhook("c_tok", &StoredWebhook{ID: "1", ReceivedAt: time.Now().Add(-time.Hour)})
	s.PutWebhook("c_tok", &StoredWebhook{ID: "2", ReceivedAt: time.Now()})

	removed := s.CleanupExpired(10 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Len(t, s.GetWebhooks("c_tok"), 1)
}

func TestStorageSessionConnectLifecycle(t *testing.T) {
	s := NewStorage(10)
	s.SetConnected("c_tok")
	assert.True(t, s.IsConnected("c_tok"))
	s.SetDisconnected("c_tok")
	assert.False(t, s.IsConnected("c_tok"))
}

func TestInvalidTokenTrackerBlocksAfterLimit(t *testing.T) {
	tr := newInvalidTokenTracker(time.Minute, 2, time.Minute)
	assert.True(t, tr.CheckAllowed("1.2.3.4"))
	tr.RecordInvalid("1.2.3.4")
	assert.True(t, tr.CheckAllowed("1.2.3.4"))
	tr.RecordInvalid("1.2.3.4")
	assert.False(t, tr.CheckAllowed("1.2.3.4"))
}

package apns_test

import (
	"encoding/json"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-coordinator/internal/platform/apns"
)

func TestDecode(t *testing.T) {
	t.Run("Alert With Custom Keys", func(t *testing.T) {
		body, err := json.Marshal(payload.NewPayload().
			AlertTitle("New poll").
			AlertBody("Vote now").
			Badge(3).
			Custom("poll_id", 42))
		require.NoError(t, err)

		n, err := apns.Decode(body, "")
		require.NoError(t, err)

		assert.Equal(t, apns2.PushTypeAlert, n.PushType)
		assert.False(t, n.ContentAvailable)
		assert.Equal(t, float64(42), n.Payload["poll_id"])
		aps, ok := n.Payload["aps"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(3), aps["badge"])
	})

	t.Run("Silent Push Is Background", func(t *testing.T) {
		body, err := json.Marshal(payload.NewPayload().ContentAvailable().Custom("sync", "inbox"))
		require.NoError(t, err)

		n, err := apns.Decode(body, "")
		require.NoError(t, err)
		assert.True(t, n.ContentAvailable)
		assert.Equal(t, apns2.PushTypeBackground, n.PushType)
	})

	t.Run("Explicit Push Type Wins", func(t *testing.T) {
		body, err := json.Marshal(payload.NewPayload().Alert("hi"))
		require.NoError(t, err)

		n, err := apns.Decode(body, "voip")
		require.NoError(t, err)
		assert.Equal(t, apns2.PushTypeVOIP, n.PushType)
	})

	t.Run("Rejects Unknown Push Type", func(t *testing.T) {
		_, err := apns.Decode([]byte(`{"aps":{}}`), "carrier-pigeon")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown apns push type")
	})

	t.Run("Rejects Malformed Body", func(t *testing.T) {
		_, err := apns.Decode([]byte("not-json"), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode apns body")
	})
}

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "keystone/pkg/domain"

	"keystone/internal/elevation/models"
)

func TestWebhookNotifier(t *testing.T) {
	t.Run("posts approval payload", func(t *testing.T) {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		n := NewWebhookNotifier(server.URL)
		approval := models.ElevationApproval{
			ElevationID: id.NewElevationID(),
			ApproverID:  id.UserID(uuid.New()),
			Automatic:   true,
		}
		require.NoError(t, n.NotifyApproved(context.Background(), approval))
		assert.Equal(t, "elevation_approved", got["event"])
		assert.Equal(t, approval.ElevationID.String(), got["elevation_id"])
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		n := NewWebhookNotifier(server.URL)
		err := n.NotifyExpired(context.Background(), id.NewElevationID(), id.UserID(uuid.New()))
		assert.Error(t, err)
	})
}

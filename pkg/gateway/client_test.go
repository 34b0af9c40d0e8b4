package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSubscription(t *testing.T) {
	t.Run("decodes subscription detail", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/subscriptions/sub_1", r.URL.Path)
			assert.Equal(t, "key-123", r.Header.Get("access_token"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"id": "sub_1",
				"customer": "cus_1",
				"status": "ACTIVE",
				"cycle": "MONTHLY",
				"description": "Premium plan",
				"value": 49.9,
				"nextDueDate": "2026-09-30"
			}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "key-123")
		detail, err := client.GetSubscription("sub_1")
		require.NoError(t, err)
		assert.Equal(t, "sub_1", detail.ID)
		assert.Equal(t, "MONTHLY", detail.Cycle)
		assert.Equal(t, "2026-09-30", detail.NextDueDate)
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(server.URL, "key-123")
		_, err := client.GetSubscription("sub_missing")
		require.Error(t, err)
	})
}

func TestParseDate(t *testing.T) {
	parsed, err := ParseDate("2026-09-30")
	require.NoError(t, err)
	assert.Equal(t, 2026, parsed.Year())

	_, err = ParseDate("30/09/2026")
	require.Error(t, err)
}

package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flaboy/aira-billing/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, token string) (*gin.Engine, *Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	engine := newTestEngine(db)
	controller := NewController(engine, token)

	router := gin.New()
	controller.RegisterRoutes(router)
	return router, engine
}

func postWebhook(router *gin.Engine, token string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("access-token", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestController(t *testing.T) {
	t.Run("rejects wrong token with 401", func(t *testing.T) {
		router, _ := newTestRouter(t, "secret")
		w := postWebhook(router, "wrong", `{"event":"PAYMENT_CONFIRMED","payment":{"id":"p"}}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing token when configured is 401", func(t *testing.T) {
		router, _ := newTestRouter(t, "secret")
		w := postWebhook(router, "", `{"event":"PAYMENT_CONFIRMED","payment":{"id":"p"}}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed json is 400", func(t *testing.T) {
		router, _ := newTestRouter(t, "")
		w := postWebhook(router, "", `{oops`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, false, body["retryable"])
	})

	t.Run("missing event object is 400", func(t *testing.T) {
		router, _ := newTestRouter(t, "")
		w := postWebhook(router, "", `{"event":"PAYMENT_CONFIRMED"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown event acknowledged with 200", func(t *testing.T) {
		router, _ := newTestRouter(t, "secret")
		w := postWebhook(router, "secret", `{"event":"SOMETHING_ELSE","payment":{"id":"p1"}}`)
		assert.Equal(t, http.StatusOK, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "processed", body["status"])
		assert.NotEmpty(t, body["eventId"])
		assert.Contains(t, body, "processingTime")
	})

	t.Run("missing account is 400 non-retryable", func(t *testing.T) {
		router, _ := newTestRouter(t, "")
		w := postWebhook(router, "", `{"event":"PAYMENT_CONFIRMED","payment":{"id":"p1","customer":"cus_nobody"}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, false, body["retryable"])
		assert.NotEmpty(t, body["eventId"])
	})

	t.Run("successful processing returns 200 with event id", func(t *testing.T) {
		router, engine := newTestRouter(t, "secret")
		newTestAccount(t, engine.db, nil)

		w := postWebhook(router, "secret", `{
			"event": "PAYMENT_CONFIRMED",
			"payment": {"id": "pay_ok", "customer": "cus_1", "externalReference": "credits-25", "value": 2.5}
		}`)
		assert.Equal(t, http.StatusOK, w.Code)

		var stored models.Account
		require.NoError(t, engine.db.Where("gateway_customer_id = ?", "cus_1").First(&stored).Error)
		assert.EqualValues(t, 25, stored.CreditsBalance)
	})

	t.Run("redelivery of processed event returns already_processed", func(t *testing.T) {
		router, engine := newTestRouter(t, "")
		newTestAccount(t, engine.db, nil)

		payload := `{"event":"PAYMENT_CONFIRMED","payment":{"id":"pay_r","customer":"cus_1","externalReference":"credits-10"}}`
		first := postWebhook(router, "", payload)
		require.Equal(t, http.StatusOK, first.Code)

		second := postWebhook(router, "", payload)
		require.Equal(t, http.StatusOK, second.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
		assert.Equal(t, "already_processed", body["status"])
	})
}

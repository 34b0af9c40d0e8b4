package webhook

import (
	"strings"
	"testing"

	"github.com/flaboy/aira-billing/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStore(t *testing.T) {
	t.Run("empty id tuple never matches", func(t *testing.T) {
		db := newTestDB(t)
		store := NewEventStore(db)

		ev := &InboundEvent{Type: EventPaymentConfirmed, Raw: []byte(`{}`)}
		row, err := store.CreatePending(ev)
		require.NoError(t, err)
		require.NoError(t, store.MarkProcessed(row))

		prior, err := store.FindProcessed(EventPaymentConfirmed, "", "")
		require.NoError(t, err)
		assert.Nil(t, prior)
	})

	t.Run("processed tuple is found, different type is not", func(t *testing.T) {
		db := newTestDB(t)
		store := NewEventStore(db)

		ev := &InboundEvent{Type: EventPaymentConfirmed, PaymentID: "pay_1", Raw: []byte(`{}`)}
		row, err := store.CreatePending(ev)
		require.NoError(t, err)
		require.NoError(t, store.MarkProcessed(row))

		prior, err := store.FindProcessed(EventPaymentConfirmed, "pay_1", "")
		require.NoError(t, err)
		require.NotNil(t, prior)
		assert.Equal(t, row.EventID, prior.EventID)

		other, err := store.FindProcessed(EventPaymentOverdue, "pay_1", "")
		require.NoError(t, err)
		assert.Nil(t, other)
	})

	t.Run("pending rows do not satisfy idempotency check", func(t *testing.T) {
		db := newTestDB(t)
		store := NewEventStore(db)

		ev := &InboundEvent{Type: EventPaymentConfirmed, PaymentID: "pay_p", Raw: []byte(`{}`)}
		_, err := store.CreatePending(ev)
		require.NoError(t, err)

		prior, err := store.FindProcessed(EventPaymentConfirmed, "pay_p", "")
		require.NoError(t, err)
		assert.Nil(t, prior)
	})

	t.Run("retry count accumulates across failed deliveries", func(t *testing.T) {
		db := newTestDB(t)
		store := NewEventStore(db)

		ev := &InboundEvent{Type: EventPaymentConfirmed, PaymentID: "pay_f", Raw: []byte(`{}`)}

		first, err := store.CreatePending(ev)
		require.NoError(t, err)
		require.NoError(t, store.MarkFailed(first, "account not found"))

		var stored models.WebhookEvent
		require.NoError(t, db.First(&stored, first.ID).Error)
		assert.EqualValues(t, 1, stored.RetryCount)

		second, err := store.CreatePending(ev)
		require.NoError(t, err)
		require.NoError(t, store.MarkFailed(second, "account not found"))

		stored = models.WebhookEvent{}
		require.NoError(t, db.First(&stored, second.ID).Error)
		assert.EqualValues(t, 2, stored.RetryCount)
	})

	t.Run("error message is truncated", func(t *testing.T) {
		db := newTestDB(t)
		store := NewEventStore(db)

		row, err := store.CreatePending(&InboundEvent{Type: EventPaymentConfirmed, PaymentID: "pay_t", Raw: []byte(`{}`)})
		require.NoError(t, err)
		require.NoError(t, store.MarkFailed(row, strings.Repeat("x", 800)))

		var stored models.WebhookEvent
		require.NoError(t, db.First(&stored, row.ID).Error)
		assert.Len(t, stored.ErrorMessage, 500)
	})
}

package webhook

import (
	"testing"
	"time"

	"github.com/flaboy/aira-billing/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestResolvePayment_StrategyOrder(t *testing.T) {
	t.Run("checkout reference wins over newer pending checkout", func(t *testing.T) {
		db := newTestDB(t)
		account := newTestAccount(t, db, nil)

		older := &models.PaymentRecord{
			AccountID:         account.ID,
			Type:              models.PaymentTypeSubscription,
			Status:            models.PaymentStatusPending,
			GatewayCheckoutID: "chk_match",
		}
		require.NoError(t, db.Create(older).Error)
		// 更新的待确认结账，只有兜底策略才会选它
		newer := &models.PaymentRecord{
			AccountID:         account.ID,
			Type:              models.PaymentTypeSubscription,
			Status:            models.PaymentStatusPending,
			GatewayCheckoutID: "chk_other",
			CreatedAt:         time.Now().Add(time.Hour),
		}
		require.NoError(t, db.Create(newer).Error)

		ev := &InboundEvent{PaymentID: "pay_1", ExternalReference: "chk_match"}
		resolved, err := ResolvePayment(db, account, ev, models.PaymentTypeSubscription)
		require.NoError(t, err)
		assert.Equal(t, older.ID, resolved.Record.ID)
		assert.Equal(t, "checkout_reference", resolved.Strategy)
	})

	t.Run("falls back to most recent pending checkout", func(t *testing.T) {
		db := newTestDB(t)
		account := newTestAccount(t, db, nil)

		old := &models.PaymentRecord{
			AccountID:         account.ID,
			Type:              models.PaymentTypeSubscription,
			Status:            models.PaymentStatusPending,
			GatewayCheckoutID: "chk_a",
			CreatedAt:         time.Now().Add(-time.Hour),
		}
		require.NoError(t, db.Create(old).Error)
		recent := &models.PaymentRecord{
			AccountID:         account.ID,
			Type:              models.PaymentTypeSubscription,
			Status:            models.PaymentStatusPending,
			GatewayCheckoutID: "chk_b",
		}
		require.NoError(t, db.Create(recent).Error)

		ev := &InboundEvent{PaymentID: "pay_1"}
		resolved, err := ResolvePayment(db, account, ev, models.PaymentTypeSubscription)
		require.NoError(t, err)
		assert.Equal(t, recent.ID, resolved.Record.ID)
		assert.Equal(t, "recent_pending_checkout", resolved.Strategy)
	})

	t.Run("matches by subscription id", func(t *testing.T) {
		db := newTestDB(t)
		account := newTestAccount(t, db, nil)

		record := &models.PaymentRecord{
			AccountID:      account.ID,
			Type:           models.PaymentTypeSubscription,
			Status:         models.PaymentStatusConfirmed,
			SubscriptionID: "sub_9",
			PlanType:       models.PlanPremium,
		}
		require.NoError(t, db.Create(record).Error)

		ev := &InboundEvent{PaymentID: "pay_1", SubscriptionID: "sub_9"}
		resolved, err := ResolvePayment(db, account, ev, models.PaymentTypeSubscription)
		require.NoError(t, err)
		assert.Equal(t, record.ID, resolved.Record.ID)
		assert.True(t, resolved.WasAlreadyConfirmed)
		assert.Equal(t, models.PlanPremium, resolved.PlanType)
	})

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		db := newTestDB(t)
		account := newTestAccount(t, db, nil)

		for _, checkout := range []string{"chk_1", "chk_2", "chk_3"} {
			require.NoError(t, db.Create(&models.PaymentRecord{
				AccountID:         account.ID,
				Type:              models.PaymentTypeSubscription,
				Status:            models.PaymentStatusPending,
				GatewayCheckoutID: checkout,
			}).Error)
		}

		ev := &InboundEvent{PaymentID: "pay_1", ExternalReference: "chk_2"}
		first, err := ResolvePayment(db, account, ev, models.PaymentTypeSubscription)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := ResolvePayment(db, account, ev, models.PaymentTypeSubscription)
			require.NoError(t, err)
			assert.Equal(t, first.Record.ID, again.Record.ID)
			assert.Equal(t, first.Strategy, again.Strategy)
		}
	})

	t.Run("credit purchase event cannot match subscription checkout", func(t *testing.T) {
		db := newTestDB(t)
		account := newTestAccount(t, db, nil)

		subCheckout := &models.PaymentRecord{
			AccountID:         account.ID,
			Type:              models.PaymentTypeSubscription,
			Status:            models.PaymentStatusPending,
			GatewayCheckoutID: "chk_sub",
		}
		require.NoError(t, db.Create(subCheckout).Error)

		ev := &InboundEvent{PaymentID: "pay_c", ExternalReference: "credits-100"}
		resolved, err := ResolvePayment(db, account, ev, models.PaymentTypeCreditPurchase)
		require.NoError(t, err)
		assert.NotEqual(t, subCheckout.ID, resolved.Record.ID)
		assert.Equal(t, models.PaymentTypeCreditPurchase, resolved.Record.Type)
	})
}

func TestResolvePayment_Reconstruction(t *testing.T) {
	db := newTestDB(t)
	account := newTestAccount(t, db, func(a *models.Account) {
		influencerID := uint(7)
		a.ReferredByInfluencerID = &influencerID
		a.ReferralCodeUsed = "CODE7"
	})

	ev := &InboundEvent{
		PaymentID:      "pay_new",
		SubscriptionID: "sub_new",
		Value:          decimal.NewFromFloat(49.90),
	}
	resolved, err := ResolvePayment(db, account, ev, models.PaymentTypeSubscription)
	require.NoError(t, err)

	assert.Equal(t, "reconstructed", resolved.Strategy)
	assert.False(t, resolved.WasAlreadyConfirmed)
	assert.Equal(t, models.PaymentStatusConfirmed, resolved.Record.Status)
	require.NotNil(t, resolved.Record.GatewayPaymentID)
	assert.Equal(t, "pay_new", *resolved.Record.GatewayPaymentID)
	// 推荐信息从账户带到重建的记录上
	require.NotNil(t, resolved.Record.InfluencerID)
	assert.Equal(t, uint(7), *resolved.Record.InfluencerID)
}

func TestResolvePayment_UniquenessUnderDuplicateCreate(t *testing.T) {
	db := newTestDB(t)
	account := newTestAccount(t, db, nil)

	ev := &InboundEvent{PaymentID: "pay_dup", Value: decimal.NewFromFloat(10)}

	first, err := ResolvePayment(db, account, ev, models.PaymentTypeSubscription)
	require.NoError(t, err)

	// 第二次解析命中 gateway_payment_id 直查策略，不会再建一条
	second, err := ResolvePayment(db, account, ev, models.PaymentTypeSubscription)
	require.NoError(t, err)
	assert.Equal(t, first.Record.ID, second.Record.ID)

	var count int64
	db.Model(&models.PaymentRecord{}).Where("gateway_payment_id = ?", "pay_dup").Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestConfirmPayment(t *testing.T) {
	t.Run("confirms pending record and preserves stored plan", func(t *testing.T) {
		db := newTestDB(t)
		account := newTestAccount(t, db, nil)

		record := &models.PaymentRecord{
			AccountID:         account.ID,
			Type:              models.PaymentTypeSubscription,
			Status:            models.PaymentStatusPending,
			GatewayCheckoutID: "chk_1",
			PlanType:          models.PlanPro,
			BillingCycle:      models.BillingCycleYearly,
		}
		require.NoError(t, db.Create(record).Error)

		ev := &InboundEvent{PaymentID: "pay_1", ExternalReference: "chk_1", Cycle: models.BillingCycleMonthly}
		resolved, err := ResolvePayment(db, account, ev, models.PaymentTypeSubscription)
		require.NoError(t, err)
		require.NoError(t, ConfirmPayment(db, resolved, ev))

		var stored models.PaymentRecord
		require.NoError(t, db.First(&stored, record.ID).Error)
		assert.Equal(t, models.PaymentStatusConfirmed, stored.Status)
		require.NotNil(t, stored.GatewayPaymentID)
		assert.Equal(t, "pay_1", *stored.GatewayPaymentID)
		assert.NotNil(t, stored.ConfirmedDate)
		// 事件的周期不覆盖记录上已有的值
		assert.Equal(t, models.BillingCycleYearly, stored.BillingCycle)
		assert.Equal(t, models.PlanPro, stored.PlanType)
	})

	t.Run("re-confirming a confirmed record is a no-op", func(t *testing.T) {
		db := newTestDB(t)
		account := newTestAccount(t, db, nil)

		confirmedAt := time.Now().Add(-time.Hour)
		record := &models.PaymentRecord{
			AccountID:        account.ID,
			Type:             models.PaymentTypeSubscription,
			Status:           models.PaymentStatusConfirmed,
			GatewayPaymentID: strPtr("pay_1"),
			ConfirmedDate:    &confirmedAt,
		}
		require.NoError(t, db.Create(record).Error)

		ev := &InboundEvent{PaymentID: "pay_1"}
		resolved, err := ResolvePayment(db, account, ev, models.PaymentTypeSubscription)
		require.NoError(t, err)
		assert.True(t, resolved.WasAlreadyConfirmed)
		require.NoError(t, ConfirmPayment(db, resolved, ev))

		var stored models.PaymentRecord
		require.NoError(t, db.First(&stored, record.ID).Error)
		assert.WithinDuration(t, confirmedAt, *stored.ConfirmedDate, time.Second)
	})
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, isDuplicateKeyError(gorm.ErrDuplicatedKey))
	assert.False(t, isDuplicateKeyError(gorm.ErrRecordNotFound))
}

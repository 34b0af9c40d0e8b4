package webhook

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/flaboy/aira-billing/pkg/models"
	"gorm.io/gorm"
)

// ResolvedPayment 解析结果。WasAlreadyConfirmed 用于抑制重复的
// 积分发放和佣金累计。
type ResolvedPayment struct {
	Record              *models.PaymentRecord
	Strategy            string
	WasAlreadyConfirmed bool

	// 从匹配记录带出的业务数据
	PlanType         string
	BillingCycle     string
	InfluencerID     *uint
	ReferralCodeUsed string
}

// matchStrategy 支付匹配策略。按声明顺序执行，可信度递减，首个命中即止。
// subscriptionOnly 的策略只在订阅支付的解析中参与，积分购买事件
// 不允许匹配到别的待确认订阅结账。
type matchStrategy struct {
	name             string
	subscriptionOnly bool
	match            func(tx *gorm.DB, account *models.Account, ev *InboundEvent) (*models.PaymentRecord, error)
}

var paymentMatchStrategies = []matchStrategy{
	{
		// 结账ID精确匹配
		name:             "checkout_reference",
		subscriptionOnly: true,
		match: func(tx *gorm.DB, account *models.Account, ev *InboundEvent) (*models.PaymentRecord, error) {
			if ev.ExternalReference == "" {
				return nil, nil
			}
			return findOnePayment(tx.Where(
				"account_id = ? AND type = ? AND gateway_checkout_id = ?",
				account.ID, models.PaymentTypeSubscription, ev.ExternalReference,
			))
		},
	},
	{
		// 最近一笔尚未确认的订阅结账
		name:             "recent_pending_checkout",
		subscriptionOnly: true,
		match: func(tx *gorm.DB, account *models.Account, ev *InboundEvent) (*models.PaymentRecord, error) {
			return findOnePayment(tx.Where(
				"account_id = ? AND type = ? AND status = ? AND gateway_checkout_id <> '' AND gateway_payment_id IS NULL",
				account.ID, models.PaymentTypeSubscription, models.PaymentStatusPending,
			).Order("created_at DESC"))
		},
	},
	{
		// 订阅ID匹配
		name:             "subscription_id",
		subscriptionOnly: true,
		match: func(tx *gorm.DB, account *models.Account, ev *InboundEvent) (*models.PaymentRecord, error) {
			if ev.SubscriptionID == "" {
				return nil, nil
			}
			return findOnePayment(tx.Where(
				"account_id = ? AND type = ? AND subscription_id = ?",
				account.ID, models.PaymentTypeSubscription, ev.SubscriptionID,
			))
		},
	},
	{
		// 网关支付ID直查，可能是此前处理到一半的记录
		name: "gateway_payment_id",
		match: func(tx *gorm.DB, account *models.Account, ev *InboundEvent) (*models.PaymentRecord, error) {
			if ev.PaymentID == "" {
				return nil, nil
			}
			return findOnePayment(tx.Where("gateway_payment_id = ?", ev.PaymentID))
		},
	},
	{
		// 任何可能通过外部引用关联的待确认记录
		name: "pending_external_reference",
		match: func(tx *gorm.DB, account *models.Account, ev *InboundEvent) (*models.PaymentRecord, error) {
			if ev.ExternalReference == "" {
				return nil, nil
			}
			return findOnePayment(tx.Where(
				"account_id = ? AND status = ? AND external_reference = ?",
				account.ID, models.PaymentStatusPending, ev.ExternalReference,
			).Order("created_at DESC"))
		},
	},
}

func findOnePayment(tx *gorm.DB) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	if err := tx.Limit(1).Find(&record).Error; err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

// ResolvePayment 在单个事务内把入站支付通知映射到唯一的内部支付记录，
// 找不到时兜底重建一条已确认记录。
func ResolvePayment(tx *gorm.DB, account *models.Account, ev *InboundEvent, paymentType string) (*ResolvedPayment, error) {
	for _, strategy := range paymentMatchStrategies {
		if strategy.subscriptionOnly && paymentType != models.PaymentTypeSubscription {
			continue
		}
		record, err := strategy.match(tx, account, ev)
		if err != nil {
			return nil, Transient(err)
		}
		if record == nil {
			continue
		}

		slog.Info("[PaymentResolver] Matched payment record",
			"strategy", strategy.name, "payment_record_id", record.ID, "gateway_payment_id", ev.PaymentID)
		return newResolvedPayment(record, strategy.name), nil
	}

	return createReconstructedPayment(tx, account, ev, paymentType)
}

func newResolvedPayment(record *models.PaymentRecord, strategy string) *ResolvedPayment {
	return &ResolvedPayment{
		Record:              record,
		Strategy:            strategy,
		WasAlreadyConfirmed: record.Status == models.PaymentStatusConfirmed,
		PlanType:            record.PlanType,
		BillingCycle:        record.BillingCycle,
		InfluencerID:        record.InfluencerID,
		ReferralCodeUsed:    record.ReferralCodeUsed,
	}
}

// createReconstructedPayment 所有策略落空时的最后手段：按事件报文
// 重建一条已确认记录。gateway_payment_id 上的唯一约束把并发重复创建
// 转化为冲突，冲突时回读对方已建的记录。
func createReconstructedPayment(tx *gorm.DB, account *models.Account, ev *InboundEvent, paymentType string) (*ResolvedPayment, error) {
	now := time.Now()
	record := &models.PaymentRecord{
		AccountID:         account.ID,
		SubscriptionID:    ev.SubscriptionID,
		Type:              paymentType,
		Status:            models.PaymentStatusConfirmed,
		Value:             ev.Value,
		BillingCycle:      ev.Cycle,
		ExternalReference: ev.ExternalReference,
		ReferralCodeUsed:  account.ReferralCodeUsed,
		InfluencerID:      account.ReferredByInfluencerID,
		ConfirmedDate:     &now,
	}
	if ev.PaymentID != "" {
		record.GatewayPaymentID = &ev.PaymentID
	}

	err := tx.Create(record).Error
	if err == nil {
		slog.Warn("[PaymentResolver] Reconstructed payment record from event payload",
			"payment_record_id", record.ID, "gateway_payment_id", ev.PaymentID)
		resolved := newResolvedPayment(record, "reconstructed")
		// 新建记录即视为本次首次确认
		resolved.WasAlreadyConfirmed = false
		return resolved, nil
	}

	if !isDuplicateKeyError(err) {
		return nil, Transient(err)
	}

	// 另一个并发投递抢先建了记录
	existing, findErr := findOnePayment(tx.Where("gateway_payment_id = ?", ev.PaymentID))
	if findErr != nil {
		return nil, Transient(findErr)
	}
	if existing == nil {
		return nil, Transient(err)
	}
	slog.Info("[PaymentResolver] Duplicate create resolved to existing record",
		"payment_record_id", existing.ID, "gateway_payment_id", ev.PaymentID)
	return newResolvedPayment(existing, "duplicate_conflict"), nil
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}

// ConfirmPayment 把匹配到的记录置为已确认。重复确认是安全的空操作，
// 已有的套餐/周期字段只在事件带来更好的值时才覆盖。
func ConfirmPayment(tx *gorm.DB, resolved *ResolvedPayment, ev *InboundEvent) error {
	record := resolved.Record
	if resolved.WasAlreadyConfirmed {
		slog.Info("[PaymentResolver] Payment already confirmed, skipping update",
			"payment_record_id", record.ID)
		return nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":         models.PaymentStatusConfirmed,
		"confirmed_date": now,
	}
	if ev.PaymentID != "" {
		updates["gateway_payment_id"] = ev.PaymentID
	}
	if ev.SubscriptionID != "" && record.SubscriptionID == "" {
		updates["subscription_id"] = ev.SubscriptionID
	}
	if record.PlanType == "" && resolved.PlanType != "" {
		updates["plan_type"] = resolved.PlanType
	}
	if record.BillingCycle == "" && ev.Cycle != "" {
		updates["billing_cycle"] = ev.Cycle
	}
	if record.Value.IsZero() && !ev.Value.IsZero() {
		updates["value"] = ev.Value
	}

	if err := tx.Model(record).Updates(updates).Error; err != nil {
		if isDuplicateKeyError(err) {
			// 唯一约束拦下了并发确认，按已确认处理
			resolved.WasAlreadyConfirmed = true
			return nil
		}
		return Transient(err)
	}

	record.Status = models.PaymentStatusConfirmed
	record.ConfirmedDate = &now
	if ev.PaymentID != "" {
		record.GatewayPaymentID = &ev.PaymentID
	}
	return nil
}

package webhook

import (
	"log/slog"
	"strings"
	"time"

	billingerrors "github.com/flaboy/aira-billing/pkg/errors"
	"github.com/flaboy/aira-billing/pkg/events"
	"github.com/flaboy/aira-billing/pkg/gateway"
	"github.com/flaboy/aira-billing/pkg/models"
	"gorm.io/gorm"
)

// planSource 套餐解析的单个来源，返回空字符串表示该来源无信息
type planSource struct {
	name    string
	resolve func(tx *gorm.DB, account *models.Account, resolved *ResolvedPayment, ev *InboundEvent) string
}

// 套餐解析优先级：账户已存值 > 匹配到的支付记录 > 账户最近带套餐的
// 支付记录 > 网关自由文本（订阅描述、结账条目名）
var planSources = []planSource{
	{
		name: "account",
		resolve: func(tx *gorm.DB, account *models.Account, resolved *ResolvedPayment, ev *InboundEvent) string {
			return account.Plan
		},
	},
	{
		name: "matched_payment",
		resolve: func(tx *gorm.DB, account *models.Account, resolved *ResolvedPayment, ev *InboundEvent) string {
			if resolved == nil {
				return ""
			}
			return resolved.PlanType
		},
	},
	{
		name: "recent_payment",
		resolve: func(tx *gorm.DB, account *models.Account, resolved *ResolvedPayment, ev *InboundEvent) string {
			var record models.PaymentRecord
			err := tx.Where("account_id = ? AND plan_type <> ''", account.ID).
				Order("created_at DESC").Limit(1).Find(&record).Error
			if err != nil || record.ID == 0 {
				return ""
			}
			return record.PlanType
		},
	},
	{
		name: "gateway_metadata",
		resolve: func(tx *gorm.DB, account *models.Account, resolved *ResolvedPayment, ev *InboundEvent) string {
			texts := append([]string{ev.Description}, ev.ItemNames...)
			return parsePlanFromText(texts)
		},
	},
}

// parsePlanFromText 在网关自由文本里大小写不敏感地匹配已知套餐名。
// premium 在 pro 之前检查，保证包含多个套餐词的文本解析顺序确定。
func parsePlanFromText(texts []string) string {
	known := []string{models.PlanPremium, models.PlanPro, models.PlanBasic}
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, plan := range known {
			if strings.Contains(lower, plan) {
				return plan
			}
		}
	}
	return ""
}

// ResolvePlanAndCycle 按优先级链解析套餐与计费周期，首个非空值生效
func ResolvePlanAndCycle(tx *gorm.DB, account *models.Account, resolved *ResolvedPayment, ev *InboundEvent) (string, string) {
	var plan string
	for _, source := range planSources {
		if plan = source.resolve(tx, account, resolved, ev); plan != "" {
			slog.Info("[SubscriptionActivator] Plan resolved", "source", source.name, "plan", plan, "account_id", account.ID)
			break
		}
	}

	cycle := account.BillingCycle
	if cycle == "" && resolved != nil {
		cycle = resolved.BillingCycle
	}
	if cycle == "" {
		cycle = ev.Cycle
	}
	if cycle == "" {
		cycle = models.BillingCycleMonthly
	}

	return plan, cycle
}

// resolvePeriodEnd 周期结束时间：账户已存的 nextDueDate 最可信
// （订阅创建时记录），其次网关报文的 endDate、nextDueDate。
// allowFallback 仅在取消场景为真，兜底当前时间+30天并降级记录日志。
func resolvePeriodEnd(account *models.Account, ev *InboundEvent, detail *gateway.SubscriptionDetail, allowFallback bool) *time.Time {
	if account.NextDueDate != nil {
		return account.NextDueDate
	}

	candidates := []string{ev.EndDate, ev.NextDueDate}
	if detail != nil {
		candidates = append(candidates, detail.EndDate, detail.NextDueDate)
	}
	for _, raw := range candidates {
		if raw == "" {
			continue
		}
		if parsed, err := gateway.ParseDate(raw); err == nil {
			return &parsed
		}
	}

	if allowFallback {
		fallback := time.Now().AddDate(0, 0, 30)
		slog.Warn("[SubscriptionActivator] No period end available, using 30-day fallback",
			"account_id", account.ID)
		return &fallback
	}
	return nil
}

// ActivateSubscription 计算套餐/周期/周期结束时间并把账户置为 active。
// 套餐无法解析时仍然激活（阻断访问比临时额度不符更糟），但返回
// 不可重试的关键数据错误，要求人工修正。
func ActivateSubscription(tx *gorm.DB, account *models.Account, resolved *ResolvedPayment, ev *InboundEvent, detail *gateway.SubscriptionDetail) error {
	plan, cycle := ResolvePlanAndCycle(tx, account, resolved, ev)
	periodEnd := resolvePeriodEnd(account, ev, detail, false)

	updates := map[string]interface{}{
		"subscription_status":       models.SubscriptionStatusActive,
		"subscription_ends_at":      nil,
		"subscription_cancelled_at": nil,
	}
	if ev.SubscriptionID != "" {
		updates["subscription_id"] = ev.SubscriptionID
	}
	if periodEnd != nil && account.NextDueDate == nil {
		updates["next_due_date"] = *periodEnd
	}

	if plan == "" {
		if err := tx.Model(account).Updates(updates).Error; err != nil {
			return Transient(err)
		}
		account.SubscriptionStatus = models.SubscriptionStatusActive
		slog.Error("[SubscriptionActivator] CRITICAL: plan unresolvable, account activated without plan, manual correction required",
			"account_id", account.ID, "gateway_payment_id", ev.PaymentID, "gateway_subscription_id", ev.SubscriptionID)
		return CriticalData(billingerrors.ErrPlanUnresolvable)
	}

	updates["plan"] = plan
	updates["billing_cycle"] = cycle
	updates["credits_limit"] = models.PlanCreditsLimit(plan, cycle)

	if err := tx.Model(account).Updates(updates).Error; err != nil {
		return Transient(err)
	}

	account.Plan = plan
	account.BillingCycle = cycle
	account.SubscriptionStatus = models.SubscriptionStatusActive
	account.CreditsLimit = models.PlanCreditsLimit(plan, cycle)

	emitSubscriptionChanged(account)
	return nil
}

// MarkSubscriptionOverdue 逾期只改订阅状态字段，不碰套餐和额度
func MarkSubscriptionOverdue(tx *gorm.DB, account *models.Account) error {
	if err := tx.Model(account).Update("subscription_status", models.SubscriptionStatusOverdue).Error; err != nil {
		return Transient(err)
	}
	account.SubscriptionStatus = models.SubscriptionStatusOverdue
	emitSubscriptionChanged(account)
	return nil
}

// CancelSubscription 记录取消时间并解析订阅剩余有效期
func CancelSubscription(tx *gorm.DB, account *models.Account, ev *InboundEvent, detail *gateway.SubscriptionDetail) error {
	now := time.Now()
	endsAt := resolvePeriodEnd(account, ev, detail, true)

	updates := map[string]interface{}{
		"subscription_status":       models.SubscriptionStatusCancelled,
		"subscription_cancelled_at": now,
		"subscription_ends_at":      endsAt,
	}
	if err := tx.Model(account).Updates(updates).Error; err != nil {
		return Transient(err)
	}
	account.SubscriptionStatus = models.SubscriptionStatusCancelled
	account.SubscriptionCancelledAt = &now
	account.SubscriptionEndsAt = endsAt

	emitSubscriptionChanged(account)
	return nil
}

// ExpireSubscription 过期时保留套餐字段，访问控制还要引用它
func ExpireSubscription(tx *gorm.DB, account *models.Account) error {
	if err := tx.Model(account).Update("subscription_status", models.SubscriptionStatusExpired).Error; err != nil {
		return Transient(err)
	}
	account.SubscriptionStatus = models.SubscriptionStatusExpired
	emitSubscriptionChanged(account)
	return nil
}

// ReactivateSubscription 按账户已存套餐重算额度并恢复 active
func ReactivateSubscription(tx *gorm.DB, account *models.Account) error {
	updates := map[string]interface{}{
		"subscription_status":       models.SubscriptionStatusActive,
		"subscription_ends_at":      nil,
		"subscription_cancelled_at": nil,
	}
	if account.Plan != "" {
		updates["credits_limit"] = models.PlanCreditsLimit(account.Plan, account.BillingCycle)
	}
	if err := tx.Model(account).Updates(updates).Error; err != nil {
		return Transient(err)
	}
	account.SubscriptionStatus = models.SubscriptionStatusActive
	account.SubscriptionEndsAt = nil
	account.SubscriptionCancelledAt = nil

	emitSubscriptionChanged(account)
	return nil
}

// emitSubscriptionChanged 尽力通知实时渠道，失败只记日志
func emitSubscriptionChanged(account *models.Account) {
	err := events.EmitSubscriptionChanged(&events.SubscriptionChangedEvent{
		AccountID:          account.ID,
		Plan:               account.Plan,
		BillingCycle:       account.BillingCycle,
		SubscriptionStatus: account.SubscriptionStatus,
		ChangedAt:          time.Now(),
	})
	if err != nil {
		slog.Warn("[SubscriptionActivator] Failed to emit subscription change", "account_id", account.ID, "error", err)
	}
}

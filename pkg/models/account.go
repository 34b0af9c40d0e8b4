package models

import (
	"time"

	"github.com/flaboy/aira-billing/pkg/database"
)

// 订阅状态
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusOverdue   = "overdue"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// 套餐类型
const (
	PlanBasic   = "basic"
	PlanPremium = "premium"
	PlanPro     = "pro"
)

// 计费周期
const (
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"
)

type Account struct {
	ID                uint   `gorm:"primaryKey"`
	Email             string `gorm:"size:255;index"`
	GatewayCustomerID string `gorm:"size:100;index"` // 网关客户ID
	Plan              string `gorm:"size:20"`
	BillingCycle      string `gorm:"size:20"`

	SubscriptionID          string `gorm:"size:100;index"` // 网关订阅ID
	SubscriptionStatus      string `gorm:"size:20"`
	NextDueDate             *time.Time
	SubscriptionEndsAt      *time.Time
	SubscriptionCancelledAt *time.Time

	// 积分额度，只允许原子增量更新
	CreditsLimit   int64
	CreditsUsed    int64
	CreditsBalance int64

	ReferralCodeUsed       string `gorm:"size:50"`
	ReferredByInfluencerID *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Account) TableName() string {
	return "ar_accounts"
}

// PlanCreditsLimit 套餐对应的周期积分额度
func PlanCreditsLimit(plan, billingCycle string) int64 {
	limits := map[string]int64{
		PlanBasic:   500,
		PlanPremium: 1500,
		PlanPro:     5000,
	}
	limit := limits[plan]
	if billingCycle == BillingCycleYearly {
		return limit * 12
	}
	return limit
}

func init() {
	database.RegisterAutoMigrateModels(&Account{})
}

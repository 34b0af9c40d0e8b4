package models

import (
	"time"

	"github.com/flaboy/aira-billing/pkg/database"
	"github.com/shopspring/decimal"
)

// 支付类型
const (
	PaymentTypeSubscription   = "subscription"
	PaymentTypeCreditPurchase = "credit_purchase"
)

// 支付状态
const (
	PaymentStatusPending   = "pending"
	PaymentStatusConfirmed = "confirmed"
	PaymentStatusOverdue   = "overdue"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

type PaymentRecord struct {
	ID        uint `gorm:"primaryKey"`
	AccountID uint `gorm:"index;not null"`

	// 网关支付ID，唯一约束把并发重复创建变成可检测的冲突
	GatewayPaymentID  *string `gorm:"size:100;uniqueIndex"`
	GatewayCheckoutID string  `gorm:"size:100;index"`
	SubscriptionID    string  `gorm:"size:100;index"`

	Type   string          `gorm:"size:20"`
	Status string          `gorm:"size:20"`
	Value  decimal.Decimal `gorm:"type:decimal(12,2)"`

	PlanType          string `gorm:"size:20"`
	BillingCycle      string `gorm:"size:20"`
	ExternalReference string `gorm:"size:255"`

	InfluencerID     *uint
	ReferralCodeUsed string `gorm:"size:50"`

	ConfirmedDate *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p *PaymentRecord) TableName() string {
	return "ar_payments"
}

func init() {
	database.RegisterAutoMigrateModels(&PaymentRecord{})
}

package models

import (
	"time"

	"github.com/flaboy/aira-billing/pkg/database"
	"github.com/shopspring/decimal"
)

// 积分购买状态
const (
	CreditPurchaseStatusPending   = "pending"
	CreditPurchaseStatusConfirmed = "confirmed"
)

// 积分流水类型
const (
	CreditTransactionTypeCredit = "credit"
	CreditTransactionTypeDebit  = "debit"
)

// 积分流水来源
const (
	CreditSourcePurchase     = "purchase"
	CreditSourceSubscription = "subscription"
)

type CreditPurchase struct {
	ID        uint `gorm:"primaryKey"`
	AccountID uint `gorm:"index;not null"`

	GatewayCheckoutID string `gorm:"size:100;index"`
	GatewayPaymentID  string `gorm:"size:100;index"`
	PackageID         *uint

	CreditAmount int64
	BonusCredits int64
	Value        decimal.Decimal `gorm:"type:decimal(12,2)"`

	Status      string `gorm:"size:20"`
	ConfirmedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c *CreditPurchase) TableName() string {
	return "ar_credit_purchases"
}

type CreditPackage struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:100"`
	Credits      int64
	BonusCredits int64
	Price        decimal.Decimal `gorm:"type:decimal(12,2)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c *CreditPackage) TableName() string {
	return "ar_credit_packages"
}

// CreditTransaction 积分流水，只追加不修改，BalanceAfter 记录增量后的余额快照
type CreditTransaction struct {
	ID        uint   `gorm:"primaryKey"`
	AccountID uint   `gorm:"index;not null"`
	Type      string `gorm:"size:20"`
	Source    string `gorm:"size:30"`

	Amount       int64
	BalanceAfter int64

	ReferenceID string `gorm:"size:100;index"`
	Metadata    string `gorm:"type:text"`

	CreatedAt time.Time
}

func (c *CreditTransaction) TableName() string {
	return "ar_credit_transactions"
}

func init() {
	database.RegisterAutoMigrateModels(&CreditPurchase{}, &CreditPackage{}, &CreditTransaction{})
}

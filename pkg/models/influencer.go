package models

import (
	"time"

	"github.com/flaboy/aira-billing/pkg/database"
	"github.com/shopspring/decimal"
)

type Influencer struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"size:100"`
	ReferralCode string `gorm:"size:50;uniqueIndex"`

	// 固定佣金优先，未配置时按百分比计算
	CommissionPercentage decimal.Decimal `gorm:"type:decimal(5,2)"`
	FixedCommission      decimal.Decimal `gorm:"type:decimal(12,2)"`

	TotalCommission decimal.Decimal `gorm:"type:decimal(12,2)"`
	TotalReferrals  int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (i *Influencer) TableName() string {
	return "ar_influencers"
}

func init() {
	database.RegisterAutoMigrateModels(&Influencer{})
}

package webhook

import (
	"log/slog"

	"github.com/flaboy/aira-billing/pkg/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var decimalHundred = decimal.NewFromInt(100)

// RecordCommission 支付首次确认时给推广人累计佣金。固定佣金优先，
// 否则按比例计算，保留两位小数。任何失败都不允许拖垮整个事件，
// 记日志后吞掉。
func RecordCommission(tx *gorm.DB, resolved *ResolvedPayment, defaultPercentage decimal.Decimal) {
	if resolved.WasAlreadyConfirmed || resolved.InfluencerID == nil {
		return
	}

	var influencer models.Influencer
	err := tx.Limit(1).Find(&influencer, *resolved.InfluencerID).Error
	if err != nil {
		slog.Warn("[CommissionCalculator] Failed to load influencer",
			"influencer_id", *resolved.InfluencerID, "error", err)
		return
	}
	if influencer.ID == 0 {
		slog.Warn("[CommissionCalculator] Influencer not found",
			"influencer_id", *resolved.InfluencerID, "payment_record_id", resolved.Record.ID)
		return
	}

	commission := CalculateCommission(resolved.Record.Value, influencer.FixedCommission, influencer.CommissionPercentage, defaultPercentage)
	if commission.IsZero() {
		return
	}

	err = tx.Model(&influencer).Updates(map[string]interface{}{
		"total_commission": gorm.Expr("total_commission + ?", commission),
		"total_referrals":  gorm.Expr("total_referrals + 1"),
	}).Error
	if err != nil {
		slog.Warn("[CommissionCalculator] Failed to record commission",
			"influencer_id", influencer.ID, "payment_record_id", resolved.Record.ID, "error", err)
		return
	}

	slog.Info("[CommissionCalculator] Commission recorded",
		"influencer_id", influencer.ID, "payment_record_id", resolved.Record.ID,
		"commission", commission.String())
}

// CalculateCommission 固定佣金配置且大于零时直接采用，否则按
// 百分比计算并四舍五入到两位小数。
func CalculateCommission(value, fixed, percentage, defaultPercentage decimal.Decimal) decimal.Decimal {
	if fixed.IsPositive() {
		return fixed.Round(2)
	}
	if percentage.IsZero() {
		percentage = defaultPercentage
	}
	return value.Mul(percentage).Div(decimalHundred).Round(2)
}

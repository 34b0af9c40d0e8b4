package webhook

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/flaboy/aira-billing/pkg/events"
	"github.com/flaboy/aira-billing/pkg/models"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// externalReference 里的积分标记：credits-<N> 直接给数量，package-<N> 指向积分包
var creditReferencePattern = regexp.MustCompile(`(credits|package)-(\d+)`)

// ConfirmCreditPurchase 确认一次性积分购买并发放积分。
// 发放严格以购买记录更新时仍为 pending 为闸门：条件更新的影响行数
// 为零说明并发投递已经发过，直接跳过。
func ConfirmCreditPurchase(tx *gorm.DB, account *models.Account, ev *InboundEvent) error {
	purchase, err := resolveCreditPurchase(tx, account, ev)
	if err != nil {
		return err
	}
	if purchase == nil {
		slog.Info("[CreditLedger] No credit purchase resolvable for event",
			"account_id", account.ID, "external_reference", ev.ExternalReference)
		return nil
	}

	res := tx.Model(&models.CreditPurchase{}).
		Where("id = ? AND status = ?", purchase.ID, models.CreditPurchaseStatusPending).
		Updates(map[string]interface{}{
			"status":             models.CreditPurchaseStatusConfirmed,
			"gateway_payment_id": ev.PaymentID,
			"confirmed_at":       time.Now(),
		})
	if res.Error != nil {
		return Transient(res.Error)
	}
	if res.RowsAffected == 0 {
		// 并发投递已经确认并发放过
		slog.Info("[CreditLedger] Purchase already confirmed, skipping grant",
			"purchase_id", purchase.ID, "account_id", account.ID)
		return nil
	}

	amount := resolveCreditAmount(tx, purchase)
	if amount <= 0 {
		slog.Warn("[CreditLedger] Resolved zero credit amount, nothing granted",
			"purchase_id", purchase.ID, "account_id", account.ID)
		return nil
	}

	return grantCredits(tx, account, amount, models.CreditSourcePurchase,
		fmt.Sprintf("purchase:%d", purchase.ID), ev)
}

// resolveCreditPurchase 按结账ID找待确认购买记录，找不到时尝试从
// externalReference 解析积分数并补建一条记录。
func resolveCreditPurchase(tx *gorm.DB, account *models.Account, ev *InboundEvent) (*models.CreditPurchase, error) {
	if ev.ExternalReference != "" {
		var purchase models.CreditPurchase
		err := tx.Where(
			"account_id = ? AND gateway_checkout_id = ? AND status = ?",
			account.ID, ev.ExternalReference, models.CreditPurchaseStatusPending,
		).Limit(1).Find(&purchase).Error
		if err != nil {
			return nil, Transient(err)
		}
		if purchase.ID != 0 {
			return &purchase, nil
		}
	}

	matches := creditReferencePattern.FindStringSubmatch(ev.ExternalReference)
	if matches == nil {
		return nil, nil
	}

	purchase := &models.CreditPurchase{
		AccountID:         account.ID,
		GatewayCheckoutID: ev.ExternalReference,
		Status:            models.CreditPurchaseStatusPending,
		Value:             ev.Value,
	}
	n := cast.ToInt64(matches[2])
	if matches[1] == "package" {
		packageID := uint(n)
		purchase.PackageID = &packageID

		var pkg models.CreditPackage
		if err := tx.Limit(1).Find(&pkg, packageID).Error; err == nil && pkg.ID != 0 {
			purchase.CreditAmount = pkg.Credits
			purchase.BonusCredits = pkg.BonusCredits
		}
	} else {
		purchase.CreditAmount = n
	}

	if err := tx.Create(purchase).Error; err != nil {
		return nil, Transient(err)
	}
	slog.Warn("[CreditLedger] Synthesized credit purchase from external reference",
		"purchase_id", purchase.ID, "account_id", account.ID, "reference", ev.ExternalReference)
	return purchase, nil
}

// resolveCreditAmount 积分包的积分+赠送优先，积分包已下架时退回
// 购买记录上存的数量。
func resolveCreditAmount(tx *gorm.DB, purchase *models.CreditPurchase) int64 {
	if purchase.PackageID != nil {
		var pkg models.CreditPackage
		if err := tx.Limit(1).Find(&pkg, *purchase.PackageID).Error; err == nil && pkg.ID != 0 {
			return pkg.Credits + pkg.BonusCredits
		}
		slog.Warn("[CreditLedger] Credit package missing, falling back to stored amount",
			"purchase_id", purchase.ID, "package_id", *purchase.PackageID)
	}
	return purchase.CreditAmount + purchase.BonusCredits
}

// grantCredits 原子增量余额，再追加一条带余额快照的流水
func grantCredits(tx *gorm.DB, account *models.Account, amount int64, source, referenceID string, ev *InboundEvent) error {
	err := tx.Model(&models.Account{}).Where("id = ?", account.ID).
		UpdateColumn("credits_balance", gorm.Expr("credits_balance + ?", amount)).Error
	if err != nil {
		return Transient(err)
	}

	// 回读增量后的余额做流水快照
	var fresh models.Account
	if err := tx.Select("credits_balance").First(&fresh, account.ID).Error; err != nil {
		return Transient(err)
	}
	account.CreditsBalance = fresh.CreditsBalance

	metadata, _ := json.Marshal(map[string]interface{}{
		"gateway_payment_id": ev.PaymentID,
		"external_reference": ev.ExternalReference,
	})
	transaction := &models.CreditTransaction{
		AccountID:    account.ID,
		Type:         models.CreditTransactionTypeCredit,
		Source:       source,
		Amount:       amount,
		BalanceAfter: fresh.CreditsBalance,
		ReferenceID:  referenceID,
		Metadata:     string(metadata),
	}
	if err := tx.Create(transaction).Error; err != nil {
		return Transient(err)
	}

	slog.Info("[CreditLedger] Credits granted",
		"account_id", account.ID, "amount", amount, "balance_after", fresh.CreditsBalance)

	emitErr := events.EmitCreditsChanged(&events.CreditsChangedEvent{
		AccountID:      account.ID,
		Delta:          amount,
		CreditsBalance: fresh.CreditsBalance,
		Source:         source,
		ChangedAt:      time.Now(),
	})
	if emitErr != nil {
		slog.Warn("[CreditLedger] Failed to emit credits change", "account_id", account.ID, "error", emitErr)
	}
	return nil
}

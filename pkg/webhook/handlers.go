package webhook

import (
	"errors"
	"log/slog"
	"time"

	billingerrors "github.com/flaboy/aira-billing/pkg/errors"
	"github.com/flaboy/aira-billing/pkg/events"
	"github.com/flaboy/aira-billing/pkg/gateway"
	"github.com/flaboy/aira-billing/pkg/models"
	"gorm.io/gorm"
)

// findAccount 优先按网关客户ID找账户，订阅事件可能只带订阅ID。
// 账户匹配关系是稳定的，找不到属于不可重试错误。
func findAccount(tx *gorm.DB, ev *InboundEvent) (*models.Account, error) {
	var account models.Account

	if ev.CustomerID != "" {
		if err := tx.Where("gateway_customer_id = ?", ev.CustomerID).Limit(1).Find(&account).Error; err != nil {
			return nil, Transient(err)
		}
	}
	if account.ID == 0 && ev.SubscriptionID != "" {
		if err := tx.Where("subscription_id = ?", ev.SubscriptionID).Limit(1).Find(&account).Error; err != nil {
			return nil, Transient(err)
		}
	}
	if account.ID == 0 {
		return nil, NotFound(billingerrors.ErrAccountNotFound)
	}
	return &account, nil
}

// isCreditPurchaseEvent 无订阅ID、且结账引用能关联到积分购买的支付
// 视为一次性积分购买，其余按订阅支付处理。
func isCreditPurchaseEvent(tx *gorm.DB, account *models.Account, ev *InboundEvent) bool {
	if ev.SubscriptionID != "" {
		return false
	}
	if creditReferencePattern.MatchString(ev.ExternalReference) {
		return true
	}
	if ev.ExternalReference == "" {
		return false
	}

	var count int64
	tx.Model(&models.CreditPurchase{}).Where(
		"account_id = ? AND gateway_checkout_id = ?", account.ID, ev.ExternalReference,
	).Count(&count)
	return count > 0
}

// handlePaymentSuccess PAYMENT_CONFIRMED / PAYMENT_RECEIVED：
// 解析支付记录、确认、按类型走订阅激活或积分发放，再算佣金。
func (e *Engine) handlePaymentSuccess(ev *InboundEvent) error {
	var criticalErr error

	err := e.db.Transaction(func(tx *gorm.DB) error {
		account, err := findAccount(tx, ev)
		if err != nil {
			return err
		}

		paymentType := models.PaymentTypeSubscription
		if isCreditPurchaseEvent(tx, account, ev) {
			paymentType = models.PaymentTypeCreditPurchase
		}

		resolved, err := ResolvePayment(tx, account, ev, paymentType)
		if err != nil {
			return err
		}
		wasAlreadyConfirmed := resolved.WasAlreadyConfirmed

		if err := ConfirmPayment(tx, resolved, ev); err != nil {
			return err
		}

		if resolved.Record.Type == models.PaymentTypeCreditPurchase {
			if err := ConfirmCreditPurchase(tx, account, ev); err != nil {
				return err
			}
		} else {
			detail := e.fetchSubscriptionDetail(ev.SubscriptionID)
			if err := e.activateWithCriticalCapture(tx, account, resolved, ev, detail, &criticalErr); err != nil {
				return err
			}
		}

		RecordCommission(tx, resolved, e.defaultCommission)

		if !wasAlreadyConfirmed {
			emitPaymentConfirmed(account, resolved, ev)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return criticalErr
}

// handleCheckoutPaid 结账流程完成的订阅激活。结账事件通常还没有
// 网关支付ID，只能靠结账ID关联。
func (e *Engine) handleCheckoutPaid(ev *InboundEvent) error {
	var criticalErr error

	err := e.db.Transaction(func(tx *gorm.DB) error {
		account, err := findAccount(tx, ev)
		if err != nil {
			return err
		}

		resolved, err := ResolvePayment(tx, account, ev, models.PaymentTypeSubscription)
		if err != nil {
			return err
		}
		wasAlreadyConfirmed := resolved.WasAlreadyConfirmed

		if err := ConfirmPayment(tx, resolved, ev); err != nil {
			return err
		}

		detail := e.fetchSubscriptionDetail(ev.SubscriptionID)
		if err := e.activateWithCriticalCapture(tx, account, resolved, ev, detail, &criticalErr); err != nil {
			return err
		}

		RecordCommission(tx, resolved, e.defaultCommission)

		if !wasAlreadyConfirmed {
			emitPaymentConfirmed(account, resolved, ev)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return criticalErr
}

// activateWithCriticalCapture 套餐解析失败属于关键数据错误：激活这个
// 安全的局部变更必须提交，错误延后到事务外再上报，避免回滚。
func (e *Engine) activateWithCriticalCapture(tx *gorm.DB, account *models.Account, resolved *ResolvedPayment, ev *InboundEvent, detail *gateway.SubscriptionDetail, criticalErr *error) error {
	err := ActivateSubscription(tx, account, resolved, ev, detail)
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) && classified.Class == ClassCriticalData {
		*criticalErr = err
		return nil
	}
	return err
}

// handlePaymentOverdue 支付逾期：记录置 overdue，订阅支付同时把
// 账户订阅状态置 overdue。无积分和佣金副作用。
func (e *Engine) handlePaymentOverdue(ev *InboundEvent) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		account, err := findAccount(tx, ev)
		if err != nil {
			return err
		}

		record, err := locatePayment(tx, account, ev)
		if err != nil {
			return err
		}
		if record != nil {
			if err := tx.Model(record).Update("status", models.PaymentStatusOverdue).Error; err != nil {
				return Transient(err)
			}
		}

		if ev.SubscriptionID != "" || (record != nil && record.Type == models.PaymentTypeSubscription) {
			return MarkSubscriptionOverdue(tx, account)
		}
		return nil
	})
}

func (e *Engine) handlePaymentCancelled(ev *InboundEvent) error {
	return e.updatePaymentStatus(ev, models.PaymentStatusCancelled)
}

func (e *Engine) handlePaymentRefunded(ev *InboundEvent) error {
	return e.updatePaymentStatus(ev, models.PaymentStatusRefunded)
}

// updatePaymentStatus 删除/退款只影响支付记录，订阅状态由订阅类
// 事件单独驱动。
func (e *Engine) updatePaymentStatus(ev *InboundEvent, status string) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		account, err := findAccount(tx, ev)
		if err != nil {
			return err
		}

		record, err := locatePayment(tx, account, ev)
		if err != nil {
			return err
		}
		if record == nil {
			slog.Info("[WebhookEngine] No payment record to update",
				"gateway_payment_id", ev.PaymentID, "status", status)
			return nil
		}
		if err := tx.Model(record).Update("status", status).Error; err != nil {
			return Transient(err)
		}
		return nil
	})
}

// locatePayment 状态类事件的轻量查找：网关支付ID优先，订阅ID兜底
func locatePayment(tx *gorm.DB, account *models.Account, ev *InboundEvent) (*models.PaymentRecord, error) {
	if ev.PaymentID != "" {
		record, err := findOnePayment(tx.Where("gateway_payment_id = ?", ev.PaymentID))
		if err != nil {
			return nil, Transient(err)
		}
		if record != nil {
			return record, nil
		}
	}
	if ev.SubscriptionID != "" {
		record, err := findOnePayment(tx.Where(
			"account_id = ? AND subscription_id = ?", account.ID, ev.SubscriptionID,
		).Order("created_at DESC"))
		if err != nil {
			return nil, Transient(err)
		}
		return record, nil
	}
	return nil, nil
}

// handleSubscriptionCreated 记录订阅ID和下次扣款日。此时存下的
// nextDueDate 是后续激活时周期结束时间的最可信来源。
func (e *Engine) handleSubscriptionCreated(ev *InboundEvent) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		account, err := findAccount(tx, ev)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if ev.SubscriptionID != "" {
			updates["subscription_id"] = ev.SubscriptionID
		}
		if ev.Cycle != "" && account.BillingCycle == "" {
			updates["billing_cycle"] = ev.Cycle
		}
		if ev.NextDueDate != "" {
			if due, err := gateway.ParseDate(ev.NextDueDate); err == nil {
				updates["next_due_date"] = due
			}
		}
		if account.Plan == "" {
			if plan := parsePlanFromText(append([]string{ev.Description}, ev.ItemNames...)); plan != "" {
				updates["plan"] = plan
			}
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(account).Updates(updates).Error; err != nil {
			return Transient(err)
		}
		return nil
	})
}

func (e *Engine) handleSubscriptionCancelled(ev *InboundEvent) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		account, err := findAccount(tx, ev)
		if err != nil {
			return err
		}
		detail := e.fetchSubscriptionDetail(ev.SubscriptionID)
		return CancelSubscription(tx, account, ev, detail)
	})
}

func (e *Engine) handleSubscriptionExpired(ev *InboundEvent) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		account, err := findAccount(tx, ev)
		if err != nil {
			return err
		}
		return ExpireSubscription(tx, account)
	})
}

func (e *Engine) handleSubscriptionReactivated(ev *InboundEvent) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		account, err := findAccount(tx, ev)
		if err != nil {
			return err
		}
		return ReactivateSubscription(tx, account)
	})
}

func emitPaymentConfirmed(account *models.Account, resolved *ResolvedPayment, ev *InboundEvent) {
	value := resolved.Record.Value
	err := events.EmitPaymentConfirmed(&events.PaymentConfirmedEvent{
		AccountID:        account.ID,
		PaymentID:        resolved.Record.ID,
		GatewayPaymentID: ev.PaymentID,
		Type:             resolved.Record.Type,
		Value:            &value,
		ConfirmedAt:      time.Now(),
	})
	if err != nil {
		slog.Warn("[WebhookEngine] Failed to emit payment confirmation", "account_id", account.ID, "error", err)
	}
}

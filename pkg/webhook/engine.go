package webhook

import (
	"fmt"
	"log/slog"

	"github.com/flaboy/aira-billing/pkg/gateway"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GatewayClient 网关补充查询，仅用于尽力而为的信息补全
type GatewayClient interface {
	GetSubscription(subscriptionID string) (*gateway.SubscriptionDetail, error)
}

// Engine Webhook对账引擎：幂等检查、事件落库、按类型分发处理
type Engine struct {
	db                *gorm.DB
	store             *EventStore
	dispatcher        *Dispatcher
	gateway           GatewayClient
	defaultCommission decimal.Decimal
}

func NewEngine(db *gorm.DB, gw GatewayClient, defaultCommissionPercentage float64) *Engine {
	e := &Engine{
		db:                db,
		store:             NewEventStore(db),
		dispatcher:        NewDispatcher(),
		gateway:           gw,
		defaultCommission: decimal.NewFromFloat(defaultCommissionPercentage),
	}

	e.dispatcher.Register(EventPaymentConfirmed, e.handlePaymentSuccess)
	e.dispatcher.Register(EventPaymentReceived, e.handlePaymentSuccess)
	e.dispatcher.Register(EventCheckoutPaid, e.handleCheckoutPaid)
	e.dispatcher.Register(EventPaymentOverdue, e.handlePaymentOverdue)
	e.dispatcher.Register(EventPaymentDeleted, e.handlePaymentCancelled)
	e.dispatcher.Register(EventPaymentRefunded, e.handlePaymentRefunded)
	e.dispatcher.Register(EventSubscriptionExpired, e.handleSubscriptionExpired)
	e.dispatcher.Register(EventSubscriptionCreated, e.handleSubscriptionCreated)
	e.dispatcher.Register(EventSubscriptionCancelled, e.handleSubscriptionCancelled)
	e.dispatcher.Register(EventSubscriptionReactivated, e.handleSubscriptionReactivated)

	return e
}

// Process 处理一条入站事件：解析校验 → 幂等检查 → 落库 pending →
// 分发 → 终态落库。处理器已提交的局部副作用不回滚，各内部变更
// 自身幂等，网关重试最终收敛。
func (e *Engine) Process(body []byte) *HandleResult {
	ev, err := ParseInboundEvent(body)
	if err != nil {
		return &HandleResult{Err: err, Retryable: false}
	}

	prior, err := e.store.FindProcessed(ev.Type, ev.PaymentID, ev.SubscriptionID)
	if err != nil {
		return &HandleResult{Err: Transient(err), Retryable: true}
	}
	if prior != nil {
		slog.Info("[WebhookEngine] Event already processed",
			"event_id", prior.EventID, "event_type", ev.Type, "gateway_payment_id", ev.PaymentID)
		return &HandleResult{Success: true, Duplicate: true, EventID: prior.EventID}
	}

	row, err := e.store.CreatePending(ev)
	if err != nil {
		return &HandleResult{Err: Transient(err), Retryable: true}
	}

	logger := slog.With("event_id", row.EventID, "event_type", ev.Type)
	logger.Info("[WebhookEngine] Processing event",
		"gateway_payment_id", ev.PaymentID, "gateway_subscription_id", ev.SubscriptionID)

	dispatchErr := e.dispatch(ev)
	if dispatchErr == nil {
		if err := e.store.MarkProcessed(row); err != nil {
			logger.Error("[WebhookEngine] Failed to mark event processed", "error", err)
			return &HandleResult{EventID: row.EventID, Err: Transient(err), Retryable: true}
		}
		return &HandleResult{Success: true, EventID: row.EventID}
	}

	logger.Error("[WebhookEngine] Event handler failed", "error", dispatchErr)
	if err := e.store.MarkFailed(row, dispatchErr.Error()); err != nil {
		logger.Error("[WebhookEngine] Failed to mark event failed", "error", err)
	}
	return &HandleResult{
		EventID:   row.EventID,
		Err:       dispatchErr,
		Retryable: IsRetryable(dispatchErr),
	}
}

// dispatch 处理器的panic在这里兜住，转成可重试错误，细节只进日志
func (e *Engine) dispatch(ev *InboundEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[WebhookEngine] Handler panicked", "event_type", ev.Type, "panic", r)
			err = Transient(fmt.Errorf("internal error while handling %s", ev.Type))
		}
	}()
	return e.dispatcher.Dispatch(ev)
}

// fetchSubscriptionDetail 尽力查询网关订阅详情，失败返回nil不中断处理
func (e *Engine) fetchSubscriptionDetail(subscriptionID string) *gateway.SubscriptionDetail {
	if e.gateway == nil || subscriptionID == "" {
		return nil
	}
	detail, err := e.gateway.GetSubscription(subscriptionID)
	if err != nil {
		slog.Warn("[WebhookEngine] Gateway subscription lookup failed, continuing without detail",
			"gateway_subscription_id", subscriptionID, "error", err)
		return nil
	}
	return detail
}

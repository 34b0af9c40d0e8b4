package webhook

import (
	"encoding/json"
	"strings"

	billingerrors "github.com/flaboy/aira-billing/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// 网关事件类型
const (
	EventPaymentConfirmed        = "PAYMENT_CONFIRMED"
	EventPaymentReceived         = "PAYMENT_RECEIVED"
	EventCheckoutPaid            = "CHECKOUT_PAID"
	EventPaymentOverdue          = "PAYMENT_OVERDUE"
	EventPaymentDeleted          = "PAYMENT_DELETED"
	EventPaymentRefunded         = "PAYMENT_REFUNDED"
	EventSubscriptionExpired     = "SUBSCRIPTION_EXPIRED"
	EventSubscriptionCreated     = "SUBSCRIPTION_CREATED"
	EventSubscriptionCancelled   = "SUBSCRIPTION_CANCELLED"
	EventSubscriptionReactivated = "SUBSCRIPTION_REACTIVATED"
)

// InboundEvent 网关报文归一化后的内部事件。网关JSON的可选字段
// 在这里一次性抽取完毕，下游业务逻辑不再碰原始报文。
type InboundEvent struct {
	Type              string
	PaymentID         string
	CustomerID        string
	SubscriptionID    string
	ExternalReference string
	Value             decimal.Decimal

	// 订阅/结账子对象携带的补充信息
	Cycle       string
	NextDueDate string
	EndDate     string
	Description string
	ItemNames   []string

	Raw json.RawMessage
}

// ParseInboundEvent 解析并校验网关报文。要求 event 字段存在，
// 且 payment / subscription / checkout 至少一个。
func ParseInboundEvent(body []byte) (*InboundEvent, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, Validation(billingerrors.ErrInvalidPayload)
	}

	eventType := cast.ToString(payload["event"])
	if eventType == "" {
		return nil, Validation(billingerrors.ErrMissingEventType)
	}

	payment := cast.ToStringMap(payload["payment"])
	subscription := cast.ToStringMap(payload["subscription"])
	checkout := cast.ToStringMap(payload["checkout"])
	if len(payment) == 0 && len(subscription) == 0 && len(checkout) == 0 {
		return nil, Validation(billingerrors.ErrMissingEventObject)
	}

	ev := &InboundEvent{
		Type: eventType,
		Raw:  json.RawMessage(body),
	}

	if len(payment) > 0 {
		ev.PaymentID = cast.ToString(payment["id"])
		ev.CustomerID = cast.ToString(payment["customer"])
		ev.SubscriptionID = cast.ToString(payment["subscription"])
		ev.ExternalReference = cast.ToString(payment["externalReference"])
		ev.Value = decimal.NewFromFloat(cast.ToFloat64(payment["value"]))
		ev.Description = cast.ToString(payment["description"])
	}

	if len(subscription) > 0 {
		if ev.SubscriptionID == "" {
			ev.SubscriptionID = cast.ToString(subscription["id"])
		}
		if ev.CustomerID == "" {
			ev.CustomerID = cast.ToString(subscription["customer"])
		}
		ev.Cycle = normalizeCycle(cast.ToString(subscription["cycle"]))
		ev.NextDueDate = cast.ToString(subscription["nextDueDate"])
		ev.EndDate = cast.ToString(subscription["endDate"])
		if desc := cast.ToString(subscription["description"]); desc != "" {
			ev.Description = desc
		}
		if ev.Value.IsZero() {
			ev.Value = decimal.NewFromFloat(cast.ToFloat64(subscription["value"]))
		}
	}

	if len(checkout) > 0 {
		if ev.CustomerID == "" {
			ev.CustomerID = cast.ToString(checkout["customer"])
		}
		if ev.ExternalReference == "" {
			ev.ExternalReference = cast.ToString(checkout["id"])
		}
		if sub := cast.ToStringMap(checkout["subscription"]); len(sub) > 0 {
			if ev.Cycle == "" {
				ev.Cycle = normalizeCycle(cast.ToString(sub["cycle"]))
			}
			if ev.SubscriptionID == "" {
				ev.SubscriptionID = cast.ToString(sub["id"])
			}
		}
		for _, item := range cast.ToSlice(checkout["items"]) {
			m := cast.ToStringMap(item)
			if name := cast.ToString(m["name"]); name != "" {
				ev.ItemNames = append(ev.ItemNames, name)
			}
			if desc := cast.ToString(m["description"]); desc != "" {
				ev.ItemNames = append(ev.ItemNames, desc)
			}
		}
	}

	return ev, nil
}

// normalizeCycle 网关周期枚举归一化为内部小写形式
func normalizeCycle(cycle string) string {
	switch strings.ToUpper(cycle) {
	case "MONTHLY":
		return "monthly"
	case "YEARLY", "ANNUAL", "ANNUALLY":
		return "yearly"
	case "":
		return ""
	default:
		return strings.ToLower(cycle)
	}
}

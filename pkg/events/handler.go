package events

type EventHandler interface {
	OnSubscriptionChanged(event *SubscriptionChangedEvent) error
	OnCreditsChanged(event *CreditsChangedEvent) error
	OnPaymentConfirmed(event *PaymentConfirmedEvent) error
}

var handler EventHandler

func SetEventHandler(h EventHandler) {
	handler = h
}

func EmitSubscriptionChanged(event *SubscriptionChangedEvent) error {
	if handler != nil {
		return handler.OnSubscriptionChanged(event)
	}
	return nil
}

func EmitCreditsChanged(event *CreditsChangedEvent) error {
	if handler != nil {
		return handler.OnCreditsChanged(event)
	}
	return nil
}

func EmitPaymentConfirmed(event *PaymentConfirmedEvent) error {
	if handler != nil {
		return handler.OnPaymentConfirmed(event)
	}
	return nil
}

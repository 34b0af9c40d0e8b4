package errors

import "github.com/flaboy/pin/usererrors"

// Webhook相关错误
var (
	ErrInvalidPayload      = usererrors.New("webhook.invalid_payload", "Invalid webhook payload")
	ErrMissingEventType    = usererrors.New("webhook.missing_event_type", "Missing event type")
	ErrMissingEventObject  = usererrors.New("webhook.missing_event_object", "Event carries neither payment nor subscription data")
	ErrInvalidWebhookToken = usererrors.New("webhook.invalid_token", "Invalid webhook access token")
	ErrAccountNotFound     = usererrors.New("webhook.account_not_found", "No account matches the gateway customer")
	ErrPlanUnresolvable    = usererrors.New("webhook.plan_unresolvable", "Subscription plan could not be resolved from any source")
	ErrPaymentConflict     = usererrors.New("webhook.payment_conflict", "Concurrent confirmation detected for the same gateway payment")
)

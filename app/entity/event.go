package entity

import (
	"encoding/json"
	"time"
)

// Canonical event names. Providers map their own event taxonomy onto
// this closed set; anything without a mapping is dropped during
// normalization.
const (
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventRefundCreated        = "refund.created"
	EventCheckoutCompleted    = "checkout.completed"
)

// CanonicalEvent is the unit of idempotent delivery. The pair
// (Provider, ProviderEventID) is the deduplication identity.
type CanonicalEvent struct {
	Name            string
	Provider        string
	ProviderEventID string
	TenantID        string
	OccurredAt      time.Time
	Data            json.RawMessage
}

type SubscriptionEventData struct {
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
	PlanID                 string     `json:"plan_id,omitempty"`
	UserID                 string     `json:"user_id,omitempty"`
	Status                 string     `json:"status"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
}

type InvoiceEventData struct {
	InvoiceID              string    `json:"invoice_id"`
	ProviderSubscriptionID *string   `json:"provider_subscription_id,omitempty"`
	UserID                 string    `json:"user_id,omitempty"`
	AmountCents            int64     `json:"amount_cents"`
	Currency               string    `json:"currency"`
	Status                 string    `json:"status"`
	IssuedAt               time.Time `json:"issued_at"`
}

type RefundEventData struct {
	RefundID          string  `json:"refund_id"`
	ProviderPaymentID *string `json:"provider_payment_id,omitempty"`
	AmountCents       int64   `json:"amount_cents"`
	Currency          string  `json:"currency"`
	Reason            *string `json:"reason,omitempty"`
}

type CheckoutEventData struct {
	SessionID              string `json:"session_id"`
	ProviderSubscriptionID string `json:"provider_subscription_id,omitempty"`
	PlanID                 string `json:"plan_id,omitempty"`
	UserID                 string `json:"user_id,omitempty"`
}

// DomainEvent is what the billing core emits to downstream consumers
// after the corresponding state change is durable.
type DomainEvent struct {
	Name            string          `json:"name"`
	TenantID        string          `json:"tenant_id"`
	Provider        string          `json:"provider"`
	ProviderEventID string          `json:"provider_event_id"`
	OccurredAt      time.Time       `json:"occurred_at"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

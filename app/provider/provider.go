package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrSubscriptionNotFound = errors.New("provider subscription not found")

type CheckoutInput struct {
	Reference string

	TenantID  string
	PlanID    string
	UserID    string
	UserEmail string

	AmountCents   int64
	Currency      string
	Interval      string
	IntervalCount int32

	// Provider-side catalog reference for the selected price, when the
	// catalog was synced to the provider (see entity.Price.ProviderRefs).
	ProviderPriceRef string

	SuccessURL string
	CancelURL  string
}

type CheckoutOutput struct {
	CheckoutURL       string
	ProviderSessionID *string
}

type SubscriptionSnapshot struct {
	ProviderSubscriptionID string
	Status                 string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}

// Provider is the capability contract one payment provider implements.
//
// VerifySignature and ToCanonicalEvents are pure: no I/O, and
// ToCanonicalEvents must only ever see payloads that already passed
// VerifySignature.
type Provider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, cfg *entity.ProviderConfig, input *CheckoutInput) (*CheckoutOutput, error)
	GetSubscription(ctx context.Context, cfg *entity.ProviderConfig, providerSubscriptionID string) (*SubscriptionSnapshot, error)
	CancelSubscription(ctx context.Context, cfg *entity.ProviderConfig, providerSubscriptionID string) error
	VerifySignature(cfg *entity.ProviderConfig, payload []byte, headers http.Header) bool
	ToCanonicalEvents(cfg *entity.ProviderConfig, payload []byte) ([]entity.CanonicalEvent, error)
}

// ProviderError wraps transport and API failures so callers never see
// raw HTTP errors. Adapters do not retry; retry policy belongs to the
// caller.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func newProviderError(providerName, op string, err error) *ProviderError {
	return &ProviderError{Provider: providerName, Op: op, Err: err}
}

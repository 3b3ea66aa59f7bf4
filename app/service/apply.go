package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

// applyEvent maps one canonical event onto persistence calls. The
// switch over canonical names is closed; unknown names are logged and
// skipped, never fatal. Every write is an idempotent upsert keyed by a
// stable id, so re-applying the same event is harmless.
//
// The returned bool reports whether a state change was applied and a
// domain event should be published.
func (s *BillingService) applyEvent(ctx context.Context, event *entity.CanonicalEvent) (bool, error) {
	switch event.Name {
	case entity.EventSubscriptionCreated, entity.EventSubscriptionUpdated, entity.EventSubscriptionCanceled:
		return true, s.applySubscriptionEvent(ctx, event)
	case entity.EventInvoicePaid, entity.EventInvoicePaymentFailed:
		return true, s.applyInvoiceEvent(ctx, event)
	case entity.EventRefundCreated:
		return true, s.applyRefundEvent(ctx, event)
	case entity.EventCheckoutCompleted:
		return true, s.applyCheckoutEvent(ctx, event)
	default:
		s.logger.WithFields(map[string]interface{}{
			"provider": event.Provider,
			"event":    event.Name,
		}).Info("No handler for canonical event, skipping")
		return false, nil
	}
}

func (s *BillingService) applySubscriptionEvent(ctx context.Context, event *entity.CanonicalEvent) error {
	var data entity.SubscriptionEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode subscription event data: %w", err)
	}
	if strings.TrimSpace(data.ProviderSubscriptionID) == "" {
		return fmt.Errorf("subscription event %s has no provider subscription id", event.ProviderEventID)
	}

	now := time.Now().UTC()
	subscription := &entity.Subscription{
		ID:                     subscriptionID(event.Provider, data.ProviderSubscriptionID),
		TenantID:               event.TenantID,
		Provider:               event.Provider,
		ProviderSubscriptionID: data.ProviderSubscriptionID,
		PlanID:                 data.PlanID,
		UserID:                 data.UserID,
		Status:                 data.Status,
		CurrentPeriodEnd:       data.CurrentPeriodEnd,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.store.UpsertSubscription(ctx, subscription); err != nil {
		return err
	}
	if data.UserID != "" {
		return s.store.LinkUserSubscription(ctx, data.UserID, subscription.ID)
	}
	return nil
}

func (s *BillingService) applyInvoiceEvent(ctx context.Context, event *entity.CanonicalEvent) error {
	var data entity.InvoiceEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode invoice event data: %w", err)
	}
	if strings.TrimSpace(data.InvoiceID) == "" {
		return fmt.Errorf("invoice event %s has no invoice id", event.ProviderEventID)
	}

	now := time.Now().UTC()
	invoice := &entity.Invoice{
		ID:          data.InvoiceID,
		TenantID:    event.TenantID,
		Provider:    event.Provider,
		UserID:      data.UserID,
		AmountCents: data.AmountCents,
		Currency:    data.Currency,
		Status:      data.Status,
		IssuedAt:    data.IssuedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if data.ProviderSubscriptionID != nil {
		id := subscriptionID(event.Provider, *data.ProviderSubscriptionID)
		invoice.SubscriptionID = &id
	}

	return s.store.UpsertInvoice(ctx, invoice)
}

func (s *BillingService) applyRefundEvent(ctx context.Context, event *entity.CanonicalEvent) error {
	var data entity.RefundEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode refund event data: %w", err)
	}
	if strings.TrimSpace(data.RefundID) == "" {
		return fmt.Errorf("refund event %s has no refund id", event.ProviderEventID)
	}

	return s.store.RecordRefund(ctx, &entity.Refund{
		ID:                data.RefundID,
		TenantID:          event.TenantID,
		Provider:          event.Provider,
		ProviderPaymentID: data.ProviderPaymentID,
		AmountCents:       data.AmountCents,
		Currency:          data.Currency,
		Reason:            data.Reason,
		CreatedAt:         time.Now().UTC(),
	})
}

func (s *BillingService) applyCheckoutEvent(ctx context.Context, event *entity.CanonicalEvent) error {
	var data entity.CheckoutEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode checkout event data: %w", err)
	}

	// The subscription row itself arrives via its own subscription
	// event; here we only secure the user link as early as possible.
	if data.UserID == "" || data.ProviderSubscriptionID == "" {
		return nil
	}
	return s.store.LinkUserSubscription(ctx, data.UserID, subscriptionID(event.Provider, data.ProviderSubscriptionID))
}

// subscriptionID builds the canonical subscription id. Keying on
// (provider, provider subscription id) makes every webhook-driven
// write a last-write-wins upsert; with out-of-order deliveries the
// final state is the most recently applied event, not necessarily the
// most recently issued one.
func subscriptionID(providerName, providerSubscriptionID string) string {
	return providerName + ":" + providerSubscriptionID
}

package service

import (
	"context"
	"strings"
	"time"
)

// RunReconcileBatch refreshes subscriptions that have not seen a
// webhook in a while against the provider's view. Missed or dropped
// deliveries eventually converge through this path.
func (s *BillingService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	before := now.Add(-s.billingCfg.ReconcileStaleAfter)

	items, err := s.store.ListStaleSubscriptions(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, subscription := range items {
		if subscription == nil || strings.TrimSpace(subscription.ProviderSubscriptionID) == "" {
			continue
		}

		cfg, err := s.configs.GetConfig(ctx, subscription.TenantID, subscription.Provider)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if cfg == nil {
			continue
		}

		adapter, err := s.providerReg.Get(subscription.Provider)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		snapshot, err := adapter.GetSubscription(ctx, cfg, subscription.ProviderSubscriptionID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		if snapshot.Status == subscription.Status && equalPeriodEnd(snapshot.CurrentPeriodEnd, subscription.CurrentPeriodEnd) {
			continue
		}

		subscription.Status = snapshot.Status
		if snapshot.CurrentPeriodEnd != nil {
			subscription.CurrentPeriodEnd = snapshot.CurrentPeriodEnd
		}
		subscription.UpdatedAt = now

		if err := s.store.UpsertSubscription(ctx, subscription); err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		s.logger.WithFields(map[string]interface{}{
			"subscription_id": subscription.ID,
			"status":          subscription.Status,
		}).Info("Subscription reconciled")
	}

	return firstErr
}

func equalPeriodEnd(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

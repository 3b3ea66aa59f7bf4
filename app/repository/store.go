package repository

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

// BillingStore bundles the MySQL repositories into the single
// persistence surface the billing service consumes.
type BillingStore struct {
	catalog       *CatalogRepository
	subscriptions *SubscriptionRepository
	invoices      *InvoiceRepository
	refunds       *RefundRepository
}

func NewBillingStore(db DBTX) *BillingStore {
	return &BillingStore{
		catalog:       NewCatalogRepository(db),
		subscriptions: NewSubscriptionRepository(db),
		invoices:      NewInvoiceRepository(db),
		refunds:       NewRefundRepository(db),
	}
}

func (s *BillingStore) FindDefaultPrice(ctx context.Context, planID string) (*entity.Price, error) {
	return s.catalog.FindDefaultPrice(ctx, planID)
}

func (s *BillingStore) UpsertPlan(ctx context.Context, plan *entity.Plan) error {
	return s.catalog.UpsertPlan(ctx, plan)
}

func (s *BillingStore) UpsertPrice(ctx context.Context, price *entity.Price) error {
	return s.catalog.UpsertPrice(ctx, price)
}

func (s *BillingStore) UpsertSubscription(ctx context.Context, subscription *entity.Subscription) error {
	return s.subscriptions.Upsert(ctx, subscription)
}

func (s *BillingStore) LinkUserSubscription(ctx context.Context, userID, subscriptionID string) error {
	return s.subscriptions.Link(ctx, userID, subscriptionID)
}

func (s *BillingStore) UpsertInvoice(ctx context.Context, invoice *entity.Invoice) error {
	return s.invoices.Upsert(ctx, invoice)
}

func (s *BillingStore) RecordRefund(ctx context.Context, refund *entity.Refund) error {
	return s.refunds.Record(ctx, refund)
}

func (s *BillingStore) ListStaleSubscriptions(ctx context.Context, before time.Time, limit int32) ([]*entity.Subscription, error) {
	return s.subscriptions.ListStale(ctx, before, limit)
}

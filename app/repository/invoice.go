package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type InvoiceRepository struct {
	db DBTX
}

func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Upsert is keyed by the invoice id; re-delivery of the same invoice
// event updates the row instead of duplicating it.
func (r *InvoiceRepository) Upsert(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		INSERT INTO invoices (
			id, tenant_id, provider, subscription_id, user_id,
			amount_cents, currency, status, issued_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			subscription_id = COALESCE(VALUES(subscription_id), subscription_id),
			user_id = IF(VALUES(user_id) = '', user_id, VALUES(user_id)),
			amount_cents = VALUES(amount_cents),
			currency = VALUES(currency),
			status = VALUES(status),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		invoice.ID,
		invoice.TenantID,
		invoice.Provider,
		nullableStringValue(invoice.SubscriptionID),
		invoice.UserID,
		invoice.AmountCents,
		invoice.Currency,
		invoice.Status,
		invoice.IssuedAt,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	return err
}

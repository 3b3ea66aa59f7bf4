package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type RefundRepository struct {
	db DBTX
}

func NewRefundRepository(db DBTX) *RefundRepository {
	return &RefundRepository{db: db}
}

// Record appends a refund. Refunds are recorded, never reversed, and
// a replayed event is a no-op thanks to the id key.
func (r *RefundRepository) Record(ctx context.Context, refund *entity.Refund) error {
	query := `
		INSERT INTO refunds (
			id, tenant_id, provider, provider_payment_id, amount_cents, currency, reason, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		refund.ID,
		refund.TenantID,
		refund.Provider,
		nullableStringValue(refund.ProviderPaymentID),
		refund.AmountCents,
		refund.Currency,
		nullableStringValue(refund.Reason),
		refund.CreatedAt,
	)
	if isDuplicateEntryError(err) {
		return nil
	}
	return err
}

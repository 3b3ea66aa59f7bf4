package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

// CatalogRepository persists plans and prices. Catalog entities are
// only ever upserted (sync or seeding) and deactivated, never deleted.
type CatalogRepository struct {
	db DBTX
}

func NewCatalogRepository(db DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) UpsertPlan(ctx context.Context, plan *entity.Plan) error {
	query := `
		INSERT INTO plans (id, name, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			active = VALUES(active),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		plan.ID,
		plan.Name,
		plan.Active,
		plan.CreatedAt,
		plan.UpdatedAt,
	)
	return err
}

func (r *CatalogRepository) UpsertPrice(ctx context.Context, price *entity.Price) error {
	refsJSON, err := serializeStringMap(price.ProviderRefs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO prices (
			id, plan_id, amount_cents, currency, billing_interval, interval_count,
			provider_refs_json, is_default, active, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			amount_cents = VALUES(amount_cents),
			currency = VALUES(currency),
			billing_interval = VALUES(billing_interval),
			interval_count = VALUES(interval_count),
			provider_refs_json = VALUES(provider_refs_json),
			is_default = VALUES(is_default),
			active = VALUES(active),
			updated_at = VALUES(updated_at)
	`

	_, err = r.db.ExecContext(ctx, query,
		price.ID,
		price.PlanID,
		price.AmountCents,
		price.Currency,
		price.Interval,
		price.IntervalCount,
		refsJSON,
		price.Default,
		price.Active,
		price.CreatedAt,
		price.UpdatedAt,
	)
	return err
}

func (r *CatalogRepository) FindDefaultPrice(ctx context.Context, planID string) (*entity.Price, error) {
	query := `
		SELECT id, plan_id, amount_cents, currency, billing_interval, interval_count,
			provider_refs_json, is_default, active, created_at, updated_at
		FROM prices
		WHERE plan_id = ? AND active = 1
		ORDER BY is_default DESC, created_at ASC
		LIMIT 1
	`

	var (
		price    entity.Price
		refsJSON string
	)
	err := r.db.QueryRowContext(ctx, query, planID).Scan(
		&price.ID,
		&price.PlanID,
		&price.AmountCents,
		&price.Currency,
		&price.Interval,
		&price.IntervalCount,
		&refsJSON,
		&price.Default,
		&price.Active,
		&price.CreatedAt,
		&price.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	refs, err := parseStringMap(refsJSON)
	if err != nil {
		return nil, err
	}
	price.ProviderRefs = refs
	return &price, nil
}

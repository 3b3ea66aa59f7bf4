package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Upsert applies a last-write-wins write keyed by the subscription id,
// which is derived from (provider, provider subscription id). With
// out-of-order webhook deliveries the row ends up reflecting the most
// recently applied event, not necessarily the most recently issued
// one; there is no provider-side event clock to order by.
func (r *SubscriptionRepository) Upsert(ctx context.Context, subscription *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, tenant_id, provider, provider_subscription_id,
			plan_id, user_id, status, current_period_end, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			plan_id = IF(VALUES(plan_id) = '', plan_id, VALUES(plan_id)),
			user_id = IF(VALUES(user_id) = '', user_id, VALUES(user_id)),
			current_period_end = COALESCE(VALUES(current_period_end), current_period_end),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		subscription.ID,
		subscription.TenantID,
		subscription.Provider,
		subscription.ProviderSubscriptionID,
		subscription.PlanID,
		subscription.UserID,
		subscription.Status,
		nullableTimeValue(subscription.CurrentPeriodEnd),
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	return err
}

// Link records user ownership of a subscription. Safe to repeat.
func (r *SubscriptionRepository) Link(ctx context.Context, userID, subscriptionID string) error {
	query := `
		INSERT IGNORE INTO user_subscriptions (user_id, subscription_id, created_at)
		VALUES (?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, userID, subscriptionID, time.Now().UTC())
	return err
}

// ListStale returns non-terminal subscriptions that have not been
// updated since the cutoff, for reconciliation against the provider.
func (r *SubscriptionRepository) ListStale(ctx context.Context, before time.Time, limit int32) ([]*entity.Subscription, error) {
	query := `
		SELECT id, tenant_id, provider, provider_subscription_id,
			plan_id, user_id, status, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE status NOT IN (?, ?) AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query,
		entity.SubscriptionStatusCanceled,
		entity.SubscriptionStatusIncompleteExpired,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Subscription, 0)
	for rows.Next() {
		item, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanSubscription(rows *sql.Rows) (*entity.Subscription, error) {
	var (
		item      entity.Subscription
		periodEnd sql.NullTime
	)
	if err := rows.Scan(
		&item.ID,
		&item.TenantID,
		&item.Provider,
		&item.ProviderSubscriptionID,
		&item.PlanID,
		&item.UserID,
		&item.Status,
		&periodEnd,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	item.CurrentPeriodEnd = timePtrFromNull(periodEnd)
	return &item, nil
}

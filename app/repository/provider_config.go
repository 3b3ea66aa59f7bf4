package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

// ProviderConfigRepository resolves per-tenant provider configuration.
// Credentials live in a JSON column and are decoded into the closed
// per-provider struct and validated on load, so a malformed config
// fails at lookup time rather than at point of use.
type ProviderConfigRepository struct {
	db DBTX
}

func NewProviderConfigRepository(db DBTX) *ProviderConfigRepository {
	return &ProviderConfigRepository{db: db}
}

func (r *ProviderConfigRepository) GetConfig(ctx context.Context, tenantID, provider string) (*entity.ProviderConfig, error) {
	query := `
		SELECT tenant_id, provider, live_mode, default_currency, credentials_json, updated_at
		FROM provider_configs
		WHERE tenant_id = ? AND provider = ? AND enabled = 1
	`

	row := r.db.QueryRowContext(ctx, query, tenantID, provider)
	cfg, err := scanProviderConfig(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cfg, err
}

func (r *ProviderConfigRepository) ListEnabledProviders(ctx context.Context, tenantID string) ([]*entity.ProviderConfig, error) {
	query := `
		SELECT tenant_id, provider, live_mode, default_currency, credentials_json, updated_at
		FROM provider_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY provider ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.ProviderConfig, 0)
	for rows.Next() {
		cfg, err := scanProviderConfig(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, cfg)
	}
	return items, rows.Err()
}

func scanProviderConfig(scan func(dest ...interface{}) error) (*entity.ProviderConfig, error) {
	var (
		cfg             entity.ProviderConfig
		credentialsJSON string
	)
	if err := scan(
		&cfg.TenantID,
		&cfg.Provider,
		&cfg.LiveMode,
		&cfg.DefaultCurrency,
		&credentialsJSON,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case entity.ProviderStripe:
		var creds entity.StripeCredentials
		if err := json.Unmarshal([]byte(credentialsJSON), &creds); err != nil {
			return nil, fmt.Errorf("decode stripe credentials for tenant %s: %w", cfg.TenantID, err)
		}
		cfg.Stripe = &creds
	case entity.ProviderPayPal:
		var creds entity.PayPalCredentials
		if err := json.Unmarshal([]byte(credentialsJSON), &creds); err != nil {
			return nil, fmt.Errorf("decode paypal credentials for tenant %s: %w", cfg.TenantID, err)
		}
		cfg.PayPal = &creds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

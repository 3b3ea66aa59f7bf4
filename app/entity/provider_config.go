package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

// ProviderConfig holds one tenant's configuration for one payment
// provider. Credentials are a closed struct per provider, validated
// when the config is loaded, not at point of use.
type ProviderConfig struct {
	TenantID        string
	Provider        string
	LiveMode        bool
	DefaultCurrency string

	Stripe *StripeCredentials
	PayPal *PayPalCredentials

	UpdatedAt time.Time
}

type StripeCredentials struct {
	SecretKey                 string `json:"secret_key"`
	WebhookSecret             string `json:"webhook_secret"`
	SignatureToleranceSeconds int64  `json:"signature_tolerance_seconds,omitempty"`
}

type PayPalCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	WebhookID    string `json:"webhook_id"`
	// PEM-encoded certificate used for local webhook signature
	// verification.
	WebhookCertPEM string `json:"webhook_cert_pem"`
}

func (c *ProviderConfig) Validate() error {
	if strings.TrimSpace(c.TenantID) == "" {
		return errors.New("provider config tenant id is required")
	}

	switch c.Provider {
	case ProviderStripe:
		if c.Stripe == nil {
			return fmt.Errorf("stripe credentials are required for tenant %s", c.TenantID)
		}
		if strings.TrimSpace(c.Stripe.SecretKey) == "" {
			return fmt.Errorf("stripe secret key is required for tenant %s", c.TenantID)
		}
		if strings.TrimSpace(c.Stripe.WebhookSecret) == "" {
			return fmt.Errorf("stripe webhook secret is required for tenant %s", c.TenantID)
		}
	case ProviderPayPal:
		if c.PayPal == nil {
			return fmt.Errorf("paypal credentials are required for tenant %s", c.TenantID)
		}
		if strings.TrimSpace(c.PayPal.ClientID) == "" || strings.TrimSpace(c.PayPal.ClientSecret) == "" {
			return fmt.Errorf("paypal client credentials are required for tenant %s", c.TenantID)
		}
		if strings.TrimSpace(c.PayPal.WebhookID) == "" {
			return fmt.Errorf("paypal webhook id is required for tenant %s", c.TenantID)
		}
	default:
		return fmt.Errorf("unknown provider %q for tenant %s", c.Provider, c.TenantID)
	}

	return nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/config"
)

const defaultBatchSize = int32(100)

type billingStore interface {
	FindDefaultPrice(ctx context.Context, planID string) (*entity.Price, error)
	UpsertPlan(ctx context.Context, plan *entity.Plan) error
	UpsertPrice(ctx context.Context, price *entity.Price) error
	UpsertSubscription(ctx context.Context, subscription *entity.Subscription) error
	LinkUserSubscription(ctx context.Context, userID, subscriptionID string) error
	UpsertInvoice(ctx context.Context, invoice *entity.Invoice) error
	RecordRefund(ctx context.Context, refund *entity.Refund) error
	ListStaleSubscriptions(ctx context.Context, before time.Time, limit int32) ([]*entity.Subscription, error)
}

type configStore interface {
	GetConfig(ctx context.Context, tenantID, providerName string) (*entity.ProviderConfig, error)
	ListEnabledProviders(ctx context.Context, tenantID string) ([]*entity.ProviderConfig, error)
}

// EventPublisher is exported so callers can swap the Redis publisher
// for the log publisher at wiring time.
type EventPublisher interface {
	Publish(ctx context.Context, event *entity.DomainEvent) error
}

type webhookInbox interface {
	Seen(ctx context.Context, providerName, providerEventID string) (bool, error)
	MarkProcessed(ctx context.Context, providerName, providerEventID string, processedAt time.Time) error
}

// IdempotencyStore reserves a logical operation key: the first caller
// runs fn and its result is memoized, later callers with the same key
// get the memoized result without re-executing fn.
type IdempotencyStore interface {
	WithKey(ctx context.Context, key string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

type BillingService struct {
	store       billingStore
	configs     configStore
	publisher   EventPublisher
	inbox       webhookInbox
	idem        IdempotencyStore
	providerReg *provider.Registry
	billingCfg  config.BillingConfig
	logger      logrus.FieldLogger
}

func NewBillingService(
	store billingStore,
	configs configStore,
	publisher EventPublisher,
	inbox webhookInbox,
	idem IdempotencyStore,
	providerReg *provider.Registry,
	billingCfg config.BillingConfig,
) *BillingService {
	return &BillingService{
		store:       store,
		configs:     configs,
		publisher:   publisher,
		inbox:       inbox,
		idem:        idem,
		providerReg: providerReg,
		billingCfg:  billingCfg,
		logger:      factory.NewModuleLogger("billing-service"),
	}
}

type CheckoutRequest struct {
	TenantID  string
	PlanID    string
	UserID    string
	UserEmail string
	// Provider overrides the tenant's default provider when set.
	Provider string
	// IdempotencyKey makes a retried create safe: the memoized first
	// result is returned instead of creating a second provider session.
	IdempotencyKey string
	SuccessURL     string
	CancelURL      string
}

type CheckoutResult struct {
	CheckoutURL       string  `json:"checkout_url"`
	ProviderSessionID *string `json:"provider_session_id,omitempty"`
}

// CreateCheckout resolves tenant config and provider adapter and
// delegates session creation. It persists nothing locally: subscription
// state is only established later through the webhook pipeline, so an
// abandoned checkout leaves no orphaned rows.
func (s *BillingService) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	tenantID := strings.TrimSpace(req.TenantID)
	planID := strings.TrimSpace(req.PlanID)
	userID := strings.TrimSpace(req.UserID)
	if tenantID == "" || planID == "" || userID == "" {
		return nil, ErrInvalidRequest
	}

	providerName := strings.ToLower(strings.TrimSpace(req.Provider))
	if providerName == "" {
		providerName = s.billingCfg.DefaultProvider
	}

	cfg, err := s.configs.GetConfig(ctx, tenantID, providerName)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}

	adapter, err := s.providerReg.Get(providerName)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	price, err := s.store.FindDefaultPrice(ctx, planID)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, ErrPlanNotFound
	}

	currency := price.Currency
	if currency == "" {
		currency = cfg.DefaultCurrency
	}

	input := &provider.CheckoutInput{
		Reference:        uuid.NewString(),
		TenantID:         tenantID,
		PlanID:           planID,
		UserID:           userID,
		UserEmail:        strings.TrimSpace(req.UserEmail),
		AmountCents:      price.AmountCents,
		Currency:         strings.ToUpper(currency),
		Interval:         price.Interval,
		IntervalCount:    price.IntervalCount,
		ProviderPriceRef: price.ProviderRefs[providerName],
		SuccessURL:       defaultString(req.SuccessURL, s.billingCfg.CheckoutSuccessURL),
		CancelURL:        defaultString(req.CancelURL, s.billingCfg.CheckoutCancelURL),
	}

	create := func(ctx context.Context) ([]byte, error) {
		output, err := adapter.CreateCheckoutSession(ctx, cfg, input)
		if err != nil {
			return nil, err
		}
		return json.Marshal(&CheckoutResult{
			CheckoutURL:       output.CheckoutURL,
			ProviderSessionID: output.ProviderSessionID,
		})
	}

	var encoded []byte
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" && s.idem != nil {
		encoded, err = s.idem.WithKey(ctx, "checkout:"+tenantID+":"+key, create)
	} else {
		encoded, err = create(ctx)
	}
	if err != nil {
		return nil, err
	}

	var result CheckoutResult
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSubscription fetches the provider's current view of a
// subscription. Local state is never consulted or written here.
func (s *BillingService) GetSubscription(ctx context.Context, tenantID, providerName, providerSubscriptionID string) (*provider.SubscriptionSnapshot, error) {
	cfg, adapter, err := s.resolve(ctx, tenantID, providerName)
	if err != nil {
		return nil, err
	}

	snapshot, err := adapter.GetSubscription(ctx, cfg, strings.TrimSpace(providerSubscriptionID))
	if err != nil {
		if errors.Is(err, provider.ErrSubscriptionNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return snapshot, nil
}

// CancelSubscription requests cancellation at the provider. The local
// subscription row transitions once the provider's webhook confirms.
func (s *BillingService) CancelSubscription(ctx context.Context, tenantID, providerName, providerSubscriptionID string) error {
	cfg, adapter, err := s.resolve(ctx, tenantID, providerName)
	if err != nil {
		return err
	}
	return adapter.CancelSubscription(ctx, cfg, strings.TrimSpace(providerSubscriptionID))
}

func (s *BillingService) ListEnabledProviders(ctx context.Context, tenantID string) ([]*entity.ProviderConfig, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrInvalidRequest
	}
	return s.configs.ListEnabledProviders(ctx, tenantID)
}

func (s *BillingService) resolve(ctx context.Context, tenantID, providerName string) (*entity.ProviderConfig, provider.Provider, error) {
	tenantID = strings.TrimSpace(tenantID)
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	if tenantID == "" || providerName == "" {
		return nil, nil, ErrInvalidRequest
	}

	adapter, err := s.providerReg.Get(providerName)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, nil, ErrProviderUnsupported
		}
		return nil, nil, err
	}

	cfg, err := s.configs.GetConfig(ctx, tenantID, providerName)
	if err != nil {
		return nil, nil, err
	}
	if cfg == nil {
		return nil, nil, ErrConfigNotFound
	}

	return cfg, adapter, nil
}

func (s *BillingService) batchSize() int32 {
	if s.billingCfg.JobBatchSize > 0 {
		return s.billingCfg.JobBatchSize
	}
	return defaultBatchSize
}

func defaultString(v, fallback string) string {
	if trimmed := strings.TrimSpace(v); trimmed != "" {
		return trimmed
	}
	return fallback
}

func keepFirstErr(current, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

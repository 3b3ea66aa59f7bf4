package types

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const idempotencyKeyHeader = "X-Idempotency-Key"

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateCheckoutRequest struct {
	TenantID       string `json:"tenant_id"`
	PlanID         string `json:"plan_id"`
	UserID         string `json:"user_id"`
	UserEmail      string `json:"user_email"`
	Provider       string `json:"provider"`
	SuccessURL     string `json:"success_url"`
	CancelURL      string `json:"cancel_url"`
	IdempotencyKey string `json:"-"`
}

func NewCreateCheckoutRequestFromContext(ctx echo.Context) (*CreateCheckoutRequest, error) {
	var body CreateCheckoutRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.TenantID = strings.TrimSpace(body.TenantID)
	body.PlanID = strings.TrimSpace(body.PlanID)
	body.UserID = strings.TrimSpace(body.UserID)
	body.UserEmail = strings.TrimSpace(body.UserEmail)
	body.Provider = strings.ToLower(strings.TrimSpace(body.Provider))
	body.SuccessURL = strings.TrimSpace(body.SuccessURL)
	body.CancelURL = strings.TrimSpace(body.CancelURL)
	body.IdempotencyKey = strings.TrimSpace(ctx.Request().Header.Get(idempotencyKeyHeader))

	return &body, nil
}

func (r *CreateCheckoutRequest) Validate() error {
	if r.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if r.PlanID == "" {
		return errors.New("plan_id is required")
	}
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	if r.UserEmail == "" {
		return errors.New("user_email is required")
	}
	return nil
}

type CheckoutResponse struct {
	CheckoutURL       string  `json:"checkout_url"`
	ProviderSessionID *string `json:"provider_session_id,omitempty"`
}

type WebhookRequest struct {
	TenantID string
	Provider string
	Payload  []byte
	Headers  http.Header
}

// NewWebhookRequestFromContext captures the body as the exact byte
// sequence the provider sent; providers sign the raw bytes, so any
// parsing before verification would break the signature.
func NewWebhookRequestFromContext(ctx echo.Context) (*WebhookRequest, error) {
	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &WebhookRequest{
		TenantID: strings.TrimSpace(ctx.QueryParam("tenantId")),
		Provider: strings.ToLower(strings.TrimSpace(ctx.Param("provider"))),
		Payload:  payload,
		Headers:  ctx.Request().Header,
	}, nil
}

func (r *WebhookRequest) Validate() error {
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	if r.TenantID == "" {
		return errors.New("tenantId query parameter is required")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

type SubscriptionRequest struct {
	TenantID               string
	Provider               string
	ProviderSubscriptionID string
}

func NewSubscriptionRequestFromContext(ctx echo.Context) (*SubscriptionRequest, error) {
	return &SubscriptionRequest{
		TenantID:               strings.TrimSpace(ctx.QueryParam("tenantId")),
		Provider:               strings.ToLower(strings.TrimSpace(ctx.Param("provider"))),
		ProviderSubscriptionID: strings.TrimSpace(ctx.Param("id")),
	}, nil
}

func (r *SubscriptionRequest) Validate() error {
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	if r.TenantID == "" {
		return errors.New("tenantId query parameter is required")
	}
	if r.ProviderSubscriptionID == "" {
		return errors.New("subscription id is required")
	}
	return nil
}

type ListProvidersRequest struct {
	TenantID string
}

func NewListProvidersRequestFromContext(ctx echo.Context) (*ListProvidersRequest, error) {
	return &ListProvidersRequest{
		TenantID: strings.TrimSpace(ctx.QueryParam("tenantId")),
	}, nil
}

func (r *ListProvidersRequest) Validate() error {
	if r.TenantID == "" {
		return errors.New("tenantId query parameter is required")
	}
	return nil
}

type SubscriptionResponse struct {
	Provider               string  `json:"provider"`
	ProviderSubscriptionID string  `json:"provider_subscription_id"`
	Status                 string  `json:"status"`
	CurrentPeriodEnd       *string `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool    `json:"cancel_at_period_end"`
}

type ProviderInfo struct {
	Provider string `json:"provider"`
	LiveMode bool   `json:"live_mode"`
	Currency string `json:"currency,omitempty"`
}

type ListProvidersResponse struct {
	Providers []*ProviderInfo `json:"providers"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

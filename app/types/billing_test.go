package types

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestNewCreateCheckoutRequestFromContextTrimsAndLowers(t *testing.T) {
	e := echo.New()
	body := `{"tenant_id":" tenant-1 ","plan_id":"plan-1","user_id":"user-1","user_email":" user@example.com ","provider":"STRIPE"}`
	req := httptest.NewRequest(http.MethodPost, "/billing/checkout", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Idempotency-Key", " key-1 ")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewCreateCheckoutRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.TenantID != "tenant-1" || parsed.UserEmail != "user@example.com" {
		t.Fatalf("expected trimmed fields, got %+v", parsed)
	}
	if parsed.Provider != "stripe" {
		t.Fatalf("expected lowered provider, got %q", parsed.Provider)
	}
	if parsed.IdempotencyKey != "key-1" {
		t.Fatalf("expected idempotency key from header, got %q", parsed.IdempotencyKey)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestCreateCheckoutRequestValidate(t *testing.T) {
	req := &CreateCheckoutRequest{PlanID: "plan-1", UserID: "user-1", UserEmail: "user@example.com"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for missing tenant_id")
	}

	req.TenantID = "tenant-1"
	req.UserEmail = ""
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for missing user_email")
	}
}

func TestNewWebhookRequestFromContextKeepsRawBody(t *testing.T) {
	e := echo.New()
	raw := `{"id":"evt_1","type":"invoice.paid"}`
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook/stripe?tenantId=tenant-1", bytes.NewBufferString(raw))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("provider")
	ctx.SetParamValues("Stripe")

	parsed, err := NewWebhookRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if string(parsed.Payload) != raw {
		t.Fatalf("payload must be the raw body, got %q", parsed.Payload)
	}
	if parsed.Provider != "stripe" {
		t.Fatalf("expected lowered provider, got %q", parsed.Provider)
	}
	if parsed.Headers.Get("Stripe-Signature") != "t=1,v1=abc" {
		t.Fatal("expected signature header to be preserved")
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestWebhookRequestValidate(t *testing.T) {
	req := &WebhookRequest{Provider: "stripe", Payload: []byte(`{}`)}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for missing tenant")
	}

	req.TenantID = "tenant-1"
	req.Payload = nil
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestSubscriptionRequestValidate(t *testing.T) {
	req := &SubscriptionRequest{TenantID: "tenant-1", Provider: "stripe"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for missing subscription id")
	}
	req.ProviderSubscriptionID = "sub_1"
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

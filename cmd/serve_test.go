package cmd

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-billing/app/controller"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/config"
)

func newHTTPServerForTest() *echo.Echo {
	billingService := service.NewBillingService(
		nil,
		nil,
		nil,
		nil,
		nil,
		provider.NewRegistry(provider.NewStripeProvider(time.Second)),
		config.BillingConfig{DefaultProvider: "stripe"},
	)
	return setupHTTPServer(controller.NewBillingController(billingService))
}

func TestSetupHTTPServerRegistersPublicRoutes(t *testing.T) {
	e := newHTTPServerForTest()

	registered := make(map[string]bool)
	for _, route := range e.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		http.MethodGet + " /health",
		http.MethodPost + " /billing/checkout",
		http.MethodGet + " /billing/providers",
		http.MethodGet + " /billing/subscriptions/:provider/:id",
		http.MethodPost + " /billing/subscriptions/:provider/:id/cancel",
		http.MethodPost + " /billing/webhook/:provider",
	} {
		if !registered[want] {
			t.Fatalf("route %q not registered", want)
		}
	}
}

func TestEnsureRequestIDGeneratesWhenAbsent(t *testing.T) {
	e := newHTTPServerForTest()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id on the response")
	}
}

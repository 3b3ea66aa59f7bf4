package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

const (
	stripeAPIBaseURL              = "https://api.stripe.com"
	stripeSignatureHeader         = "Stripe-Signature"
	defaultStripeToleranceSeconds = 300
)

type StripeProvider struct {
	client *http.Client
}

func NewStripeProvider(httpTimeout time.Duration) *StripeProvider {
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}
	return &StripeProvider{
		client: &http.Client{Timeout: httpTimeout},
	}
}

func (p *StripeProvider) Name() string {
	return entity.ProviderStripe
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cfg *entity.ProviderConfig, input *CheckoutInput) (*CheckoutOutput, error) {
	values := url.Values{}
	values.Set("mode", "subscription")
	values.Set("line_items[0][quantity]", "1")

	if ref := strings.TrimSpace(input.ProviderPriceRef); ref != "" {
		values.Set("line_items[0][price]", ref)
	} else {
		values.Set("line_items[0][price_data][currency]", strings.ToLower(input.Currency))
		values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(input.AmountCents, 10))
		values.Set("line_items[0][price_data][product_data][name]", input.PlanID)
		values.Set("line_items[0][price_data][recurring][interval]", input.Interval)
		values.Set("line_items[0][price_data][recurring][interval_count]", strconv.FormatInt(int64(input.IntervalCount), 10))
	}

	values.Set("success_url", input.SuccessURL)
	values.Set("cancel_url", input.CancelURL)
	values.Set("client_reference_id", input.Reference)
	if email := strings.TrimSpace(input.UserEmail); email != "" {
		values.Set("customer_email", email)
	}

	// Metadata rides along on the subscription so webhook events can be
	// mapped back to the tenant's plan and user without extra lookups.
	values.Set("metadata[tenant_id]", input.TenantID)
	values.Set("metadata[plan_id]", input.PlanID)
	values.Set("metadata[user_id]", input.UserID)
	values.Set("subscription_data[metadata][tenant_id]", input.TenantID)
	values.Set("subscription_data[metadata][plan_id]", input.PlanID)
	values.Set("subscription_data[metadata][user_id]", input.UserID)

	body, err := p.postForm(ctx, cfg, "/v1/checkout/sessions", values)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newProviderError(p.Name(), "create checkout session", err)
	}
	if strings.TrimSpace(payload.URL) == "" {
		return nil, newProviderError(p.Name(), "create checkout session", errors.New("response has no checkout url"))
	}

	output := &CheckoutOutput{CheckoutURL: strings.TrimSpace(payload.URL)}
	if s := strings.TrimSpace(payload.ID); s != "" {
		output.ProviderSessionID = &s
	}
	return output, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, cfg *entity.ProviderConfig, providerSubscriptionID string) (*SubscriptionSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		stripeAPIBaseURL+"/v1/subscriptions/"+url.PathEscape(providerSubscriptionID), nil)
	if err != nil {
		return nil, newProviderError(p.Name(), "get subscription", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Stripe.SecretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, newProviderError(p.Name(), "get subscription", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newProviderError(p.Name(), "get subscription", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSubscriptionNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, newProviderError(p.Name(), "get subscription",
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	}

	var payload struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
		CurrentPeriodEnd  int64  `json:"current_period_end"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newProviderError(p.Name(), "get subscription", err)
	}

	snapshot := &SubscriptionSnapshot{
		ProviderSubscriptionID: payload.ID,
		Status:                 mapStripeSubscriptionStatus(payload.Status),
		CancelAtPeriodEnd:      payload.CancelAtPeriodEnd,
	}
	if payload.CurrentPeriodEnd > 0 {
		end := time.Unix(payload.CurrentPeriodEnd, 0).UTC()
		snapshot.CurrentPeriodEnd = &end
	}
	return snapshot, nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, cfg *entity.ProviderConfig, providerSubscriptionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		stripeAPIBaseURL+"/v1/subscriptions/"+url.PathEscape(providerSubscriptionID), nil)
	if err != nil {
		return newProviderError(p.Name(), "cancel subscription", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Stripe.SecretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return newProviderError(p.Name(), "cancel subscription", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newProviderError(p.Name(), "cancel subscription", err)
	}
	// A second cancel must not error the caller: Stripe answers 404 for
	// a subscription that was already canceled and removed.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 400 {
		return newProviderError(p.Name(), "cancel subscription",
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	}
	return nil
}

func (p *StripeProvider) VerifySignature(cfg *entity.ProviderConfig, payload []byte, headers http.Header) bool {
	if cfg == nil || cfg.Stripe == nil {
		return false
	}
	tolerance := cfg.Stripe.SignatureToleranceSeconds
	if tolerance <= 0 {
		tolerance = defaultStripeToleranceSeconds
	}
	return verifyStripeSignature(payload, headers.Get(stripeSignatureHeader), cfg.Stripe.WebhookSecret, tolerance)
}

func (p *StripeProvider) ToCanonicalEvents(cfg *entity.ProviderConfig, payload []byte) ([]entity.CanonicalEvent, error) {
	var event struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parse stripe event: %w", err)
	}

	occurredAt := time.Now().UTC()
	if event.Created > 0 {
		occurredAt = time.Unix(event.Created, 0).UTC()
	}

	var (
		name string
		data any
	)
	switch event.Type {
	case "customer.subscription.created":
		name = entity.EventSubscriptionCreated
		data = stripeSubscriptionData(event.Data.Object, "")
	case "customer.subscription.updated":
		name = entity.EventSubscriptionUpdated
		data = stripeSubscriptionData(event.Data.Object, "")
	case "customer.subscription.deleted":
		name = entity.EventSubscriptionCanceled
		data = stripeSubscriptionData(event.Data.Object, entity.SubscriptionStatusCanceled)
	case "invoice.paid":
		name = entity.EventInvoicePaid
		data = stripeInvoiceData(event.Data.Object, entity.InvoiceStatusPaid, occurredAt)
	case "invoice.payment_failed":
		name = entity.EventInvoicePaymentFailed
		data = stripeInvoiceData(event.Data.Object, entity.InvoiceStatusFailed, occurredAt)
	case "charge.refunded":
		name = entity.EventRefundCreated
		data = stripeRefundData(event.Data.Object)
	case "checkout.session.completed":
		name = entity.EventCheckoutCompleted
		data = stripeCheckoutData(event.Data.Object)
	default:
		// Valid but not actionable (heartbeats, unmapped types).
		return nil, nil
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode canonical event data: %w", err)
	}

	return []entity.CanonicalEvent{{
		Name:            name,
		Provider:        p.Name(),
		ProviderEventID: strings.TrimSpace(event.ID),
		TenantID:        cfg.TenantID,
		OccurredAt:      occurredAt,
		Data:            encoded,
	}}, nil
}

func (p *StripeProvider) postForm(ctx context.Context, cfg *entity.ProviderConfig, path string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, stripeAPIBaseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, newProviderError(p.Name(), "post "+path, err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Stripe.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, newProviderError(p.Name(), "post "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newProviderError(p.Name(), "post "+path, err)
	}
	if resp.StatusCode >= 400 {
		return nil, newProviderError(p.Name(), "post "+path,
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	}
	return body, nil
}

func verifyStripeSignature(payload []byte, signatureHeader, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}

func mapStripeSubscriptionStatus(status string) string {
	// Stripe's status vocabulary already matches the canonical set;
	// anything unexpected is reported as incomplete.
	if entity.IsValidSubscriptionStatus(status) {
		return status
	}
	return entity.SubscriptionStatusIncomplete
}

func stripeSubscriptionData(object json.RawMessage, statusOverride string) *entity.SubscriptionEventData {
	var sub struct {
		ID               string            `json:"id"`
		Status           string            `json:"status"`
		CurrentPeriodEnd int64             `json:"current_period_end"`
		Metadata         map[string]string `json:"metadata"`
	}
	_ = json.Unmarshal(object, &sub)

	status := statusOverride
	if status == "" {
		status = mapStripeSubscriptionStatus(sub.Status)
	}

	data := &entity.SubscriptionEventData{
		ProviderSubscriptionID: strings.TrimSpace(sub.ID),
		PlanID:                 strings.TrimSpace(sub.Metadata["plan_id"]),
		UserID:                 strings.TrimSpace(sub.Metadata["user_id"]),
		Status:                 status,
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		data.CurrentPeriodEnd = &end
	}
	return data
}

func stripeInvoiceData(object json.RawMessage, status string, fallbackIssuedAt time.Time) *entity.InvoiceEventData {
	var inv struct {
		ID           string            `json:"id"`
		Subscription interface{}       `json:"subscription"`
		AmountPaid   int64             `json:"amount_paid"`
		AmountDue    int64             `json:"amount_due"`
		Currency     string            `json:"currency"`
		Created      int64             `json:"created"`
		Metadata     map[string]string `json:"metadata"`
	}
	_ = json.Unmarshal(object, &inv)

	amount := inv.AmountPaid
	if status != entity.InvoiceStatusPaid {
		amount = inv.AmountDue
	}

	issuedAt := fallbackIssuedAt
	if inv.Created > 0 {
		issuedAt = time.Unix(inv.Created, 0).UTC()
	}

	data := &entity.InvoiceEventData{
		InvoiceID:   strings.TrimSpace(inv.ID),
		UserID:      strings.TrimSpace(inv.Metadata["user_id"]),
		AmountCents: amount,
		Currency:    strings.ToUpper(strings.TrimSpace(inv.Currency)),
		Status:      status,
		IssuedAt:    issuedAt,
	}
	if s := parseStringish(inv.Subscription); s != "" {
		data.ProviderSubscriptionID = &s
	}
	return data
}

func stripeRefundData(object json.RawMessage) *entity.RefundEventData {
	var charge struct {
		ID             string `json:"id"`
		AmountRefunded int64  `json:"amount_refunded"`
		Currency       string `json:"currency"`
		Refunds        struct {
			Data []struct {
				ID     string `json:"id"`
				Reason string `json:"reason"`
			} `json:"data"`
		} `json:"refunds"`
	}
	_ = json.Unmarshal(object, &charge)

	chargeID := strings.TrimSpace(charge.ID)
	data := &entity.RefundEventData{
		RefundID:    chargeID,
		AmountCents: charge.AmountRefunded,
		Currency:    strings.ToUpper(strings.TrimSpace(charge.Currency)),
	}
	if chargeID != "" {
		data.ProviderPaymentID = &chargeID
	}
	if len(charge.Refunds.Data) > 0 {
		if id := strings.TrimSpace(charge.Refunds.Data[0].ID); id != "" {
			data.RefundID = id
		}
		if reason := strings.TrimSpace(charge.Refunds.Data[0].Reason); reason != "" {
			data.Reason = &reason
		}
	}
	return data
}

func stripeCheckoutData(object json.RawMessage) *entity.CheckoutEventData {
	var session struct {
		ID           string            `json:"id"`
		Subscription interface{}       `json:"subscription"`
		Metadata     map[string]string `json:"metadata"`
	}
	_ = json.Unmarshal(object, &session)

	return &entity.CheckoutEventData{
		SessionID:              strings.TrimSpace(session.ID),
		ProviderSubscriptionID: parseStringish(session.Subscription),
		PlanID:                 strings.TrimSpace(session.Metadata["plan_id"]),
		UserID:                 strings.TrimSpace(session.Metadata["user_id"]),
	}
}

func parseStringish(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if raw, ok := t["id"]; ok {
			if s, ok := raw.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

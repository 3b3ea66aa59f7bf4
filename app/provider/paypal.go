package provider

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

const (
	paypalLiveBaseURL    = "https://api-m.paypal.com"
	paypalSandboxBaseURL = "https://api-m.sandbox.paypal.com"
)

type PayPalProvider struct {
	client *http.Client
}

func NewPayPalProvider(httpTimeout time.Duration) *PayPalProvider {
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}
	return &PayPalProvider{
		client: &http.Client{Timeout: httpTimeout},
	}
}

func (p *PayPalProvider) Name() string {
	return entity.ProviderPayPal
}

func (p *PayPalProvider) CreateCheckoutSession(ctx context.Context, cfg *entity.ProviderConfig, input *CheckoutInput) (*CheckoutOutput, error) {
	planRef := strings.TrimSpace(input.ProviderPriceRef)
	if planRef == "" {
		return nil, newProviderError(p.Name(), "create checkout session",
			errors.New("paypal requires a provider-side billing plan reference"))
	}

	token, err := p.accessToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"plan_id":   planRef,
		"custom_id": input.UserID,
		"subscriber": map[string]interface{}{
			"email_address": input.UserEmail,
		},
		"application_context": map[string]string{
			"return_url": input.SuccessURL,
			"cancel_url": input.CancelURL,
		},
	}

	body, err := p.postJSON(ctx, cfg, token, "/v1/billing/subscriptions", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, newProviderError(p.Name(), "create checkout session", err)
	}

	approveURL := ""
	for _, link := range result.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}
	if approveURL == "" {
		return nil, newProviderError(p.Name(), "create checkout session", errors.New("response has no approve link"))
	}

	output := &CheckoutOutput{CheckoutURL: approveURL}
	if s := strings.TrimSpace(result.ID); s != "" {
		output.ProviderSessionID = &s
	}
	return output, nil
}

func (p *PayPalProvider) GetSubscription(ctx context.Context, cfg *entity.ProviderConfig, providerSubscriptionID string) (*SubscriptionSnapshot, error) {
	token, err := p.accessToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL(cfg)+"/v1/billing/subscriptions/"+url.PathEscape(providerSubscriptionID), nil)
	if err != nil {
		return nil, newProviderError(p.Name(), "get subscription", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

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
		ID          string `json:"id"`
		Status      string `json:"status"`
		BillingInfo struct {
			NextBillingTime time.Time `json:"next_billing_time"`
		} `json:"billing_info"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newProviderError(p.Name(), "get subscription", err)
	}

	snapshot := &SubscriptionSnapshot{
		ProviderSubscriptionID: payload.ID,
		Status:                 mapPayPalSubscriptionStatus(payload.Status),
	}
	if !payload.BillingInfo.NextBillingTime.IsZero() {
		end := payload.BillingInfo.NextBillingTime.UTC()
		snapshot.CurrentPeriodEnd = &end
	}
	return snapshot, nil
}

func (p *PayPalProvider) CancelSubscription(ctx context.Context, cfg *entity.ProviderConfig, providerSubscriptionID string) error {
	token, err := p.accessToken(ctx, cfg)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{"reason": "canceled by merchant"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL(cfg)+"/v1/billing/subscriptions/"+url.PathEscape(providerSubscriptionID)+"/cancel",
		bytes.NewReader(payload))
	if err != nil {
		return newProviderError(p.Name(), "cancel subscription", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return newProviderError(p.Name(), "cancel subscription", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newProviderError(p.Name(), "cancel subscription", err)
	}
	// 404 and 422 cover subscriptions that are gone or already in a
	// terminal state; cancel stays idempotent for the caller.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity {
		return nil
	}
	if resp.StatusCode >= 400 {
		return newProviderError(p.Name(), "cancel subscription",
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	}
	return nil
}

// VerifySignature checks the PayPal transmission signature locally:
// SHA256withRSA over transmissionID|transmissionTime|webhookID|crc32(payload)
// against the webhook certificate pinned in the tenant config. No
// network calls are made.
func (p *PayPalProvider) VerifySignature(cfg *entity.ProviderConfig, payload []byte, headers http.Header) bool {
	if cfg == nil || cfg.PayPal == nil {
		return false
	}

	transmissionID := strings.TrimSpace(headers.Get("Paypal-Transmission-Id"))
	transmissionTime := strings.TrimSpace(headers.Get("Paypal-Transmission-Time"))
	signature := strings.TrimSpace(headers.Get("Paypal-Transmission-Sig"))
	authAlgo := strings.TrimSpace(headers.Get("Paypal-Auth-Algo"))
	if transmissionID == "" || transmissionTime == "" || signature == "" {
		return false
	}
	if authAlgo != "" && !strings.EqualFold(authAlgo, "SHA256withRSA") {
		return false
	}

	publicKey := parsePayPalCert(cfg.PayPal.WebhookCertPEM)
	if publicKey == nil {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	message := fmt.Sprintf("%s|%s|%s|%d",
		transmissionID, transmissionTime, cfg.PayPal.WebhookID, crc32.ChecksumIEEE(payload))
	digest := sha256.Sum256([]byte(message))

	return rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], sig) == nil
}

func (p *PayPalProvider) ToCanonicalEvents(cfg *entity.ProviderConfig, payload []byte) ([]entity.CanonicalEvent, error) {
	var event struct {
		ID         string          `json:"id"`
		EventType  string          `json:"event_type"`
		CreateTime time.Time       `json:"create_time"`
		Resource   json.RawMessage `json:"resource"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parse paypal event: %w", err)
	}

	occurredAt := event.CreateTime.UTC()
	if event.CreateTime.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var (
		name string
		data any
	)
	switch event.EventType {
	case "BILLING.SUBSCRIPTION.CREATED":
		name = entity.EventSubscriptionCreated
		data = paypalSubscriptionData(event.Resource, "")
	case "BILLING.SUBSCRIPTION.ACTIVATED", "BILLING.SUBSCRIPTION.UPDATED", "BILLING.SUBSCRIPTION.SUSPENDED":
		name = entity.EventSubscriptionUpdated
		data = paypalSubscriptionData(event.Resource, "")
	case "BILLING.SUBSCRIPTION.CANCELLED":
		name = entity.EventSubscriptionCanceled
		data = paypalSubscriptionData(event.Resource, entity.SubscriptionStatusCanceled)
	case "BILLING.SUBSCRIPTION.EXPIRED":
		name = entity.EventSubscriptionCanceled
		data = paypalSubscriptionData(event.Resource, entity.SubscriptionStatusIncompleteExpired)
	case "PAYMENT.SALE.COMPLETED":
		name = entity.EventInvoicePaid
		data = paypalSaleData(event.Resource, entity.InvoiceStatusPaid, occurredAt)
	case "PAYMENT.SALE.REFUNDED":
		name = entity.EventRefundCreated
		data = paypalRefundData(event.Resource)
	default:
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

func (p *PayPalProvider) baseURL(cfg *entity.ProviderConfig) string {
	if cfg.LiveMode {
		return paypalLiveBaseURL
	}
	return paypalSandboxBaseURL
}

func (p *PayPalProvider) accessToken(ctx context.Context, cfg *entity.ProviderConfig) (string, error) {
	auth := base64.StdEncoding.EncodeToString(
		[]byte(cfg.PayPal.ClientID + ":" + cfg.PayPal.ClientSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL(cfg)+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", newProviderError(p.Name(), "oauth token", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", newProviderError(p.Name(), "oauth token", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newProviderError(p.Name(), "oauth token", err)
	}
	if resp.StatusCode >= 400 {
		return "", newProviderError(p.Name(), "oauth token",
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", newProviderError(p.Name(), "oauth token", err)
	}
	if strings.TrimSpace(result.AccessToken) == "" {
		return "", newProviderError(p.Name(), "oauth token", errors.New("response has no access token"))
	}
	return result.AccessToken, nil
}

func (p *PayPalProvider) postJSON(ctx context.Context, cfg *entity.ProviderConfig, token, path string, payload interface{}) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, newProviderError(p.Name(), "post "+path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL(cfg)+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, newProviderError(p.Name(), "post "+path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

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

func parsePayPalCert(certPEM string) *rsa.PublicKey {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil
	}
	publicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil
	}
	return publicKey
}

func mapPayPalSubscriptionStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "ACTIVE":
		return entity.SubscriptionStatusActive
	case "SUSPENDED":
		return entity.SubscriptionStatusPastDue
	case "CANCELLED":
		return entity.SubscriptionStatusCanceled
	case "EXPIRED":
		return entity.SubscriptionStatusIncompleteExpired
	case "APPROVAL_PENDING", "APPROVED":
		return entity.SubscriptionStatusIncomplete
	default:
		return entity.SubscriptionStatusIncomplete
	}
}

func paypalSubscriptionData(resource json.RawMessage, statusOverride string) *entity.SubscriptionEventData {
	var sub struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		CustomID    string `json:"custom_id"`
		BillingInfo struct {
			NextBillingTime time.Time `json:"next_billing_time"`
		} `json:"billing_info"`
	}
	_ = json.Unmarshal(resource, &sub)

	status := statusOverride
	if status == "" {
		status = mapPayPalSubscriptionStatus(sub.Status)
	}

	data := &entity.SubscriptionEventData{
		ProviderSubscriptionID: strings.TrimSpace(sub.ID),
		UserID:                 strings.TrimSpace(sub.CustomID),
		Status:                 status,
	}
	if !sub.BillingInfo.NextBillingTime.IsZero() {
		end := sub.BillingInfo.NextBillingTime.UTC()
		data.CurrentPeriodEnd = &end
	}
	return data
}

func paypalSaleData(resource json.RawMessage, status string, issuedAt time.Time) *entity.InvoiceEventData {
	var sale struct {
		ID                 string `json:"id"`
		BillingAgreementID string `json:"billing_agreement_id"`
		CustomID           string `json:"custom"`
		Amount             struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"amount"`
		CreateTime time.Time `json:"create_time"`
	}
	_ = json.Unmarshal(resource, &sale)

	if !sale.CreateTime.IsZero() {
		issuedAt = sale.CreateTime.UTC()
	}

	data := &entity.InvoiceEventData{
		InvoiceID:   strings.TrimSpace(sale.ID),
		UserID:      strings.TrimSpace(sale.CustomID),
		AmountCents: paypalAmountCents(sale.Amount.Total),
		Currency:    strings.ToUpper(strings.TrimSpace(sale.Amount.Currency)),
		Status:      status,
		IssuedAt:    issuedAt,
	}
	if s := strings.TrimSpace(sale.BillingAgreementID); s != "" {
		data.ProviderSubscriptionID = &s
	}
	return data
}

func paypalRefundData(resource json.RawMessage) *entity.RefundEventData {
	var refund struct {
		ID     string `json:"id"`
		SaleID string `json:"sale_id"`
		Amount struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"amount"`
	}
	_ = json.Unmarshal(resource, &refund)

	data := &entity.RefundEventData{
		RefundID:    strings.TrimSpace(refund.ID),
		AmountCents: paypalAmountCents(refund.Amount.Total),
		Currency:    strings.ToUpper(strings.TrimSpace(refund.Amount.Currency)),
	}
	if s := strings.TrimSpace(refund.SaleID); s != "" {
		data.ProviderPaymentID = &s
	}
	return data
}

// PayPal reports amounts as decimal strings ("10.00").
func paypalAmountCents(total string) int64 {
	total = strings.TrimSpace(total)
	if total == "" {
		return 0
	}
	value, err := strconv.ParseFloat(total, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(value * 100))
}

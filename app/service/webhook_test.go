package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

func subscriptionCreatedEvent(eventID, subID string) entity.CanonicalEvent {
	data, _ := json.Marshal(&entity.SubscriptionEventData{
		ProviderSubscriptionID: subID,
		PlanID:                 "plan-1",
		UserID:                 "user-1",
		Status:                 entity.SubscriptionStatusActive,
	})
	return entity.CanonicalEvent{
		Name:            entity.EventSubscriptionCreated,
		Provider:        "stripe",
		ProviderEventID: eventID,
		TenantID:        "tenant-1",
		OccurredAt:      time.Now().UTC(),
		Data:            data,
	}
}

func webhookServiceForTest(store *serviceStore, pub *servicePublisher, inbox *serviceInbox, idem IdempotencyStore, stripe *stubProvider) *BillingService {
	configs := &serviceConfigStore{configs: map[string]*entity.ProviderConfig{
		configKey("tenant-1", "stripe"): stripeTestConfig("tenant-1"),
	}}
	return newBillingServiceForTest(store, configs, pub, inbox, idem, stripe)
}

func TestHandleWebhookUnknownProviderSkipsAdapter(t *testing.T) {
	store := newServiceStore()
	pub := &servicePublisher{}
	inbox := newServiceInbox()
	stripe := &stubProvider{verifyOK: true, events: []entity.CanonicalEvent{subscriptionCreatedEvent("evt_1", "sub_1")}}
	svc := webhookServiceForTest(store, pub, inbox, nil, stripe)

	err := svc.HandleWebhook(context.Background(), &WebhookRequest{
		TenantID: "tenant-1",
		Provider: "adyen",
		Payload:  []byte(`{"id":"evt_1"}`),
		Headers:  http.Header{},
	})
	if !errors.Is(err, ErrProviderUnsupported) {
		t.Fatalf("expected ErrProviderUnsupported, got %v", err)
	}
	if stripe.verifyCalls != 0 {
		t.Fatalf("expected no adapter invocation, verify called %d times", stripe.verifyCalls)
	}
	if len(store.subscriptions) != 0 || len(pub.events) != 0 || len(inbox.processed) != 0 {
		t.Fatal("expected no side effects for unknown provider")
	}
}

func TestHandleWebhookRejectedSignatureHasNoSideEffects(t *testing.T) {
	store := newServiceStore()
	pub := &servicePublisher{}
	inbox := newServiceInbox()
	stripe := &stubProvider{verifyOK: false, events: []entity.CanonicalEvent{subscriptionCreatedEvent("evt_1", "sub_1")}}
	svc := webhookServiceForTest(store, pub, inbox, nil, stripe)

	err := svc.HandleWebhook(context.Background(), &WebhookRequest{
		TenantID: "tenant-1",
		Provider: "stripe",
		Payload:  []byte(`{"id":"evt_1"}`),
		Headers:  http.Header{},
	})
	if !errors.Is(err, ErrSignatureRejected) {
		t.Fatalf("expected ErrSignatureRejected, got %v", err)
	}
	if len(store.subscriptions) != 0 || len(pub.events) != 0 || len(inbox.processed) != 0 {
		t.Fatal("expected no side effects for rejected signature")
	}
}

func TestHandleWebhookMalformedPayloadRejected(t *testing.T) {
	stripe := &stubProvider{verifyOK: true, eventsErr: errors.New("unexpected end of JSON input")}
	svc := webhookServiceForTest(newServiceStore(), &servicePublisher{}, newServiceInbox(), nil, stripe)

	err := svc.HandleWebhook(context.Background(), &WebhookRequest{
		TenantID: "tenant-1",
		Provider: "stripe",
		Payload:  []byte(`{`),
		Headers:  http.Header{},
	})
	if !errors.Is(err, ErrPayloadRejected) {
		t.Fatalf("expected ErrPayloadRejected, got %v", err)
	}
}

func TestHandleWebhookAppliesPublishesThenMarksProcessed(t *testing.T) {
	store := newServiceStore()
	pub := &servicePublisher{store: store}
	inbox := newServiceInbox()
	inbox.store = store
	stripe := &stubProvider{verifyOK: true, events: []entity.CanonicalEvent{subscriptionCreatedEvent("evt_1", "sub_1")}}
	svc := webhookServiceForTest(store, pub, inbox, nil, stripe)

	if err := svc.HandleWebhook(context.Background(), &WebhookRequest{
		TenantID: "tenant-1",
		Provider: "stripe",
		Payload:  []byte(`{"id":"evt_1"}`),
		Headers:  http.Header{},
	}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	want := []string{"persist:stripe:sub_1", "publish:billing.subscription.created", "mark:evt_1"}
	if len(store.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, store.calls)
	}
	for i := range want {
		if store.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, store.calls)
		}
	}

	sub := store.subscriptions["stripe:sub_1"]
	if sub == nil || sub.Status != entity.SubscriptionStatusActive {
		t.Fatalf("expected active subscription stripe:sub_1, got %+v", sub)
	}
	if store.links["stripe:sub_1"] != "user-1" {
		t.Fatalf("expected user link for stripe:sub_1, got %q", store.links["stripe:sub_1"])
	}
	if len(pub.events) != 1 || pub.events[0].Name != "billing.subscription.created" {
		t.Fatalf("expected one billing.subscription.created event, got %+v", pub.events)
	}
}

func TestHandleWebhookReplayIsSkipped(t *testing.T) {
	store := newServiceStore()
	pub := &servicePublisher{}
	inbox := newServiceInbox()
	stripe := &stubProvider{verifyOK: true, events: []entity.CanonicalEvent{subscriptionCreatedEvent("evt_1", "sub_1")}}
	svc := webhookServiceForTest(store, pub, inbox, nil, stripe)

	req := &WebhookRequest{TenantID: "tenant-1", Provider: "stripe", Payload: []byte(`{"id":"evt_1"}`), Headers: http.Header{}}
	if err := svc.HandleWebhook(context.Background(), req); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := svc.HandleWebhook(context.Background(), req); err != nil {
		t.Fatalf("replayed delivery failed: %v", err)
	}

	persists := 0
	for _, call := range store.calls {
		if strings.HasPrefix(call, "persist:") {
			persists++
		}
	}
	if persists != 1 {
		t.Fatalf("expected one persist across replays, got %d", persists)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one published event across replays, got %d", len(pub.events))
	}
}

func TestHandleWebhookFailedApplyLeavesInboxUnmarked(t *testing.T) {
	store := newServiceStore()
	store.upsertSubErr = errors.New("deadlock found when trying to get lock")
	pub := &servicePublisher{}
	inbox := newServiceInbox()
	stripe := &stubProvider{verifyOK: true, events: []entity.CanonicalEvent{subscriptionCreatedEvent("evt_1", "sub_1")}}
	svc := webhookServiceForTest(store, pub, inbox, nil, stripe)

	req := &WebhookRequest{TenantID: "tenant-1", Provider: "stripe", Payload: []byte(`{"id":"evt_1"}`), Headers: http.Header{}}
	if err := svc.HandleWebhook(context.Background(), req); err == nil {
		t.Fatal("expected error when apply fails")
	}
	if len(inbox.processed) != 0 {
		t.Fatal("failed event must not be marked processed")
	}
	if len(pub.events) != 0 {
		t.Fatal("failed event must not be published")
	}

	// Provider retry after the transient failure clears.
	store.upsertSubErr = nil
	if err := svc.HandleWebhook(context.Background(), req); err != nil {
		t.Fatalf("retried delivery failed: %v", err)
	}
	if _, ok := inbox.processed["stripe/evt_1"]; !ok {
		t.Fatal("expected retried event to be marked processed")
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one published event after retry, got %d", len(pub.events))
	}
}

func TestHandleWebhookUnknownEventAckedWithoutSideEffects(t *testing.T) {
	store := newServiceStore()
	pub := &servicePublisher{}
	inbox := newServiceInbox()
	stripe := &stubProvider{verifyOK: true, events: []entity.CanonicalEvent{{
		Name:            "payout.created",
		Provider:        "stripe",
		ProviderEventID: "evt_unknown",
		TenantID:        "tenant-1",
		OccurredAt:      time.Now().UTC(),
		Data:            json.RawMessage(`{}`),
	}}}
	svc := webhookServiceForTest(store, pub, inbox, nil, stripe)

	if err := svc.HandleWebhook(context.Background(), &WebhookRequest{
		TenantID: "tenant-1", Provider: "stripe", Payload: []byte(`{"id":"evt_unknown"}`), Headers: http.Header{},
	}); err != nil {
		t.Fatalf("expected unknown event to be acked, got %v", err)
	}
	if len(store.subscriptions) != 0 || len(pub.events) != 0 {
		t.Fatal("unknown event must have no side effects")
	}
	if _, ok := inbox.processed["stripe/evt_unknown"]; !ok {
		t.Fatal("unknown event should still be marked processed")
	}
}

func TestHandleWebhookPartialFailureStillAppliesOtherEvents(t *testing.T) {
	store := newServiceStore()
	pub := &servicePublisher{}
	inbox := newServiceInbox()

	badData := json.RawMessage(`{"provider_subscription_id":""}`)
	stripe := &stubProvider{verifyOK: true, events: []entity.CanonicalEvent{
		{
			Name:            entity.EventSubscriptionUpdated,
			Provider:        "stripe",
			ProviderEventID: "evt_bad",
			TenantID:        "tenant-1",
			OccurredAt:      time.Now().UTC(),
			Data:            badData,
		},
		subscriptionCreatedEvent("evt_good", "sub_2"),
	}}
	svc := webhookServiceForTest(store, pub, inbox, nil, stripe)

	err := svc.HandleWebhook(context.Background(), &WebhookRequest{
		TenantID: "tenant-1", Provider: "stripe", Payload: []byte(`{"id":"evt_bad"}`), Headers: http.Header{},
	})
	if err == nil {
		t.Fatal("expected error for the failing event")
	}

	if _, ok := inbox.processed["stripe/evt_good"]; !ok {
		t.Fatal("expected healthy event to be applied and marked")
	}
	if _, ok := inbox.processed["stripe/evt_bad"]; ok {
		t.Fatal("failing event must stay unmarked for the provider retry")
	}
	if store.subscriptions["stripe:sub_2"] == nil {
		t.Fatal("expected healthy event's subscription to be persisted")
	}
}

func TestHandleWebhookConcurrentDuplicateAppliesOnce(t *testing.T) {
	store := newServiceStore()
	pub := &servicePublisher{}
	inbox := newServiceInbox()
	stripe := &stubProvider{verifyOK: true, events: []entity.CanonicalEvent{subscriptionCreatedEvent("evt_1", "sub_1")}}
	svc := webhookServiceForTest(store, pub, inbox, repository.NewMemoryIdempotencyStore(), stripe)

	req := &WebhookRequest{TenantID: "tenant-1", Provider: "stripe", Payload: []byte(`{"id":"evt_1"}`), Headers: http.Header{}}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.HandleWebhook(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("delivery %d failed: %v", i, err)
		}
	}

	persists := 0
	for _, call := range store.calls {
		if strings.HasPrefix(call, "persist:") {
			persists++
		}
	}
	if persists != 1 {
		t.Fatalf("expected exactly one persist for concurrent duplicates, got %d", persists)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected exactly one published event for concurrent duplicates, got %d", len(pub.events))
	}
}

func TestHandleWebhookInvoiceAndRefundEvents(t *testing.T) {
	store := newServiceStore()
	pub := &servicePublisher{}
	inbox := newServiceInbox()

	subID := "sub_1"
	invoiceData, _ := json.Marshal(&entity.InvoiceEventData{
		InvoiceID:              "in_1",
		ProviderSubscriptionID: &subID,
		AmountCents:            990,
		Currency:               "USD",
		Status:                 entity.InvoiceStatusPaid,
		IssuedAt:               time.Now().UTC(),
	})
	paymentID := "py_1"
	refundData, _ := json.Marshal(&entity.RefundEventData{
		RefundID:          "re_1",
		ProviderPaymentID: &paymentID,
		AmountCents:       990,
		Currency:          "USD",
	})
	stripe := &stubProvider{verifyOK: true, events: []entity.CanonicalEvent{
		{Name: entity.EventInvoicePaid, Provider: "stripe", ProviderEventID: "evt_in", TenantID: "tenant-1", OccurredAt: time.Now().UTC(), Data: invoiceData},
		{Name: entity.EventRefundCreated, Provider: "stripe", ProviderEventID: "evt_re", TenantID: "tenant-1", OccurredAt: time.Now().UTC(), Data: refundData},
	}}
	svc := webhookServiceForTest(store, pub, inbox, nil, stripe)

	if err := svc.HandleWebhook(context.Background(), &WebhookRequest{
		TenantID: "tenant-1", Provider: "stripe", Payload: []byte(`{"id":"evt_in"}`), Headers: http.Header{},
	}); err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}

	invoice := store.invoices["in_1"]
	if invoice == nil {
		t.Fatal("expected invoice in_1 to be persisted")
	}
	if invoice.SubscriptionID == nil || *invoice.SubscriptionID != "stripe:sub_1" {
		t.Fatalf("expected invoice linked to stripe:sub_1, got %v", invoice.SubscriptionID)
	}
	if store.refunds["re_1"] == nil {
		t.Fatal("expected refund re_1 to be recorded")
	}
	if len(pub.events) != 2 {
		t.Fatalf("expected two published events, got %d", len(pub.events))
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
)

type WebhookRequest struct {
	TenantID string
	Provider string
	// Payload is the exact byte sequence the provider sent; it must not
	// be parsed before signature verification.
	Payload []byte
	Headers http.Header
}

// HandleWebhook runs one inbound delivery through the pipeline:
// verify signature, normalize to canonical events, then per event
// dedup against the inbox, apply, publish, and mark processed. A
// failed event is left unmarked so the provider's retry reprocesses
// it; already-applied events are shielded by the inbox on that retry.
func (s *BillingService) HandleWebhook(ctx context.Context, req *WebhookRequest) error {
	providerName := strings.ToLower(strings.TrimSpace(req.Provider))
	tenantID := strings.TrimSpace(req.TenantID)
	if providerName == "" || tenantID == "" {
		return ErrInvalidRequest
	}

	adapter, err := s.providerReg.Get(providerName)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return ErrProviderUnsupported
		}
		return err
	}

	cfg, err := s.configs.GetConfig(ctx, tenantID, providerName)
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrConfigNotFound
	}

	if !adapter.VerifySignature(cfg, req.Payload, req.Headers) {
		return ErrSignatureRejected
	}

	events, err := adapter.ToCanonicalEvents(cfg, req.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadRejected, err)
	}

	// Once the delivery is verified, a dropped client connection must
	// not abort an apply mid-upsert and strand an unmarked inbox entry.
	applyCtx := context.WithoutCancel(ctx)

	var firstErr error
	for i := range events {
		if err := s.processEvent(applyCtx, &events[i]); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}
	return firstErr
}

func (s *BillingService) processEvent(ctx context.Context, event *entity.CanonicalEvent) error {
	if strings.TrimSpace(event.ProviderEventID) == "" {
		s.logger.WithFields(map[string]interface{}{
			"provider": event.Provider,
			"event":    event.Name,
		}).Warn("Canonical event without provider event id, applying without dedup")
		return s.applyAndPublish(ctx, event)
	}

	seen, err := s.inbox.Seen(ctx, event.Provider, event.ProviderEventID)
	if err != nil {
		return err
	}
	if seen {
		// Expected replay path, not an error.
		s.logger.WithFields(map[string]interface{}{
			"provider":          event.Provider,
			"provider_event_id": event.ProviderEventID,
		}).Debug("Duplicate webhook event skipped")
		return nil
	}

	if s.idem != nil {
		// Closes the window between two concurrent deliveries that both
		// pass the inbox check before either marks processed.
		_, err = s.idem.WithKey(ctx, "wh:"+event.Provider+":"+event.ProviderEventID,
			func(ctx context.Context) ([]byte, error) {
				return nil, s.applyAndPublish(ctx, event)
			})
	} else {
		err = s.applyAndPublish(ctx, event)
	}
	if err != nil {
		return err
	}

	return s.inbox.MarkProcessed(ctx, event.Provider, event.ProviderEventID, time.Now().UTC())
}

func (s *BillingService) applyAndPublish(ctx context.Context, event *entity.CanonicalEvent) error {
	applied, err := s.applyEvent(ctx, event)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	// Publish strictly after persistence: consumers may assume the
	// state they observe through the event is already durable.
	return s.publisher.Publish(ctx, &entity.DomainEvent{
		Name:            "billing." + event.Name,
		TenantID:        event.TenantID,
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		OccurredAt:      event.OccurredAt,
		Payload:         event.Data,
	})
}

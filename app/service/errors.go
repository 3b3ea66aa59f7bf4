package service

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrConfigNotFound       = errors.New("provider is not configured for tenant")
	ErrProviderUnsupported  = errors.New("provider is not supported")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSignatureRejected    = errors.New("webhook signature rejected")
	ErrPayloadRejected      = errors.New("webhook payload rejected")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

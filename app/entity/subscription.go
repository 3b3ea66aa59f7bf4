package entity

import "time"

const (
	SubscriptionStatusActive            = "active"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
)

type Subscription struct {
	ID string

	TenantID               string
	Provider               string
	ProviderSubscriptionID string

	PlanID string
	UserID string

	Status           string
	CurrentPeriodEnd *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func IsValidSubscriptionStatus(status string) bool {
	switch status {
	case SubscriptionStatusActive,
		SubscriptionStatusTrialing,
		SubscriptionStatusPastDue,
		SubscriptionStatusCanceled,
		SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired:
		return true
	default:
		return false
	}
}

func SubscriptionTerminal(status string) bool {
	switch status {
	case SubscriptionStatusCanceled, SubscriptionStatusIncompleteExpired:
		return true
	default:
		return false
	}
}

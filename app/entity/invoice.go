package entity

import "time"

const (
	InvoiceStatusPaid   = "paid"
	InvoiceStatusFailed = "failed"
	InvoiceStatusOpen   = "open"
)

type Invoice struct {
	ID string

	TenantID       string
	Provider       string
	SubscriptionID *string
	UserID         string

	AmountCents int64
	Currency    string
	Status      string

	IssuedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Refund struct {
	ID string

	TenantID          string
	Provider          string
	ProviderPaymentID *string

	AmountCents int64
	Currency    string
	Reason      *string

	CreatedAt time.Time
}

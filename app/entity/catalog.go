package entity

import "time"

type Plan struct {
	ID     string
	Name   string
	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Price struct {
	ID     string
	PlanID string

	AmountCents   int64
	Currency      string
	Interval      string
	IntervalCount int32

	// Provider-side catalog ids, keyed by provider name. Providers that
	// require a pre-created plan (PayPal billing plans) resolve their
	// reference here.
	ProviderRefs map[string]string

	Default bool
	Active  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

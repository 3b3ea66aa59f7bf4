package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

func CheckoutToResponse(result *service.CheckoutResult) *types.CheckoutResponse {
	return &types.CheckoutResponse{
		CheckoutURL:       result.CheckoutURL,
		ProviderSessionID: result.ProviderSessionID,
	}
}

func SnapshotToResponse(providerName string, snapshot *provider.SubscriptionSnapshot) *types.SubscriptionResponse {
	resp := &types.SubscriptionResponse{
		Provider:               providerName,
		ProviderSubscriptionID: snapshot.ProviderSubscriptionID,
		Status:                 snapshot.Status,
		CancelAtPeriodEnd:      snapshot.CancelAtPeriodEnd,
	}
	if snapshot.CurrentPeriodEnd != nil {
		formatted := snapshot.CurrentPeriodEnd.UTC().Format(time.RFC3339)
		resp.CurrentPeriodEnd = &formatted
	}
	return resp
}

// ConfigsToProviderInfos exposes enabled providers without leaking
// credentials.
func ConfigsToProviderInfos(configs []*entity.ProviderConfig) []*types.ProviderInfo {
	items := make([]*types.ProviderInfo, 0, len(configs))
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		items = append(items, &types.ProviderInfo{
			Provider: cfg.Provider,
			LiveMode: cfg.LiveMode,
			Currency: cfg.DefaultCurrency,
		})
	}
	return items
}

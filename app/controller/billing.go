package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/mapper"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

type BillingController struct {
	billingService *service.BillingService
	logger         logrus.FieldLogger
}

func NewBillingController(billingService *service.BillingService) *BillingController {
	return &BillingController{
		billingService: billingService,
		logger:         factory.NewModuleLogger("billing-controller"),
	}
}

func (c *BillingController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *BillingController) CreateCheckout(ctx echo.Context) error {
	req, err := types.NewCreateCheckoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.billingService.CreateCheckout(ctx.Request().Context(), &service.CheckoutRequest{
		TenantID:       req.TenantID,
		PlanID:         req.PlanID,
		UserID:         req.UserID,
		UserEmail:      req.UserEmail,
		Provider:       req.Provider,
		IdempotencyKey: req.IdempotencyKey,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
	})
	if err != nil {
		return c.writeServiceError(ctx, err, "Create checkout failed")
	}

	return ctx.JSON(http.StatusCreated, mapper.CheckoutToResponse(result))
}

// HandleWebhook answers 200 "ok" only when every canonical event in
// the delivery was applied or skipped; any other status tells the
// provider to retry the whole delivery, which is safe because applied
// events are shielded by the inbox.
func (c *BillingController) HandleWebhook(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	err = c.billingService.HandleWebhook(ctx.Request().Context(), &service.WebhookRequest{
		TenantID: req.TenantID,
		Provider: req.Provider,
		Payload:  req.Payload,
		Headers:  req.Headers,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSignatureRejected):
			return c.writeError(ctx, http.StatusUnauthorized, "webhook signature rejected")
		case errors.Is(err, service.ErrProviderUnsupported),
			errors.Is(err, service.ErrConfigNotFound),
			errors.Is(err, service.ErrPayloadRejected),
			errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle webhook failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.String(http.StatusOK, "ok")
}

func (c *BillingController) GetSubscription(ctx echo.Context) error {
	req, err := types.NewSubscriptionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	snapshot, err := c.billingService.GetSubscription(ctx.Request().Context(), req.TenantID, req.Provider, req.ProviderSubscriptionID)
	if err != nil {
		return c.writeServiceError(ctx, err, "Get subscription failed")
	}

	return ctx.JSON(http.StatusOK, mapper.SnapshotToResponse(req.Provider, snapshot))
}

func (c *BillingController) CancelSubscription(ctx echo.Context) error {
	req, err := types.NewSubscriptionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	if err := c.billingService.CancelSubscription(ctx.Request().Context(), req.TenantID, req.Provider, req.ProviderSubscriptionID); err != nil {
		return c.writeServiceError(ctx, err, "Cancel subscription failed")
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Subscription cancellation requested"})
}

func (c *BillingController) ListProviders(ctx echo.Context) error {
	req, err := types.NewListProvidersRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	configs, err := c.billingService.ListEnabledProviders(ctx.Request().Context(), req.TenantID)
	if err != nil {
		return c.writeServiceError(ctx, err, "List providers failed")
	}

	return ctx.JSON(http.StatusOK, &types.ListProvidersResponse{Providers: mapper.ConfigsToProviderInfos(configs)})
}

func (c *BillingController) writeServiceError(ctx echo.Context, err error, logMessage string) error {
	var providerErr *provider.ProviderError

	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConfigNotFound), errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, service.ErrSubscriptionNotFound):
		return c.writeError(ctx, http.StatusNotFound, err.Error())
	case errors.As(err, &providerErr):
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return c.writeError(ctx, http.StatusBadGateway, "payment provider error")
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *BillingController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}

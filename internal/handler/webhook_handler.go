package handler

import (
	"errors"
	"io"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Stripeが送ってくるイベントの上限
const maxWebhookBodyBytes = 65536

type WebhookHandler struct {
	uc     *usecase.PaymentWebhookUsecase
	logger *zap.Logger
}

func NewWebhookHandler(uc *usecase.PaymentWebhookUsecase, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{uc: uc, logger: logger}
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// 認証なし。署名で検証する
func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/stripe", h.stripe)
}

func (h *WebhookHandler) stripe(c echo.Context) error {
	req := c.Request()

	//署名は生のボディに対して検証するのでBindしない
	payload, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, maxWebhookBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	outcome, err := h.uc.HandlePaymentEvent(req.Context(), payload, req.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, usecase.ErrInvalidSignature):
		h.logger.Warn("webhook signature rejected", zap.String("remote_ip", c.RealIP()))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid signature"})
	case err != nil:
		//500ならStripeが再送する
		c.Set(middleware.CtxErrorKey, err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}

	return c.JSON(http.StatusOK, WebhookResponse{Received: true, Outcome: string(outcome)})
}

package server

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Auth        *handler.AuthHandler
	Cart        *handler.CartHandler
	Checkout    *handler.CheckoutHandler
	Orders      *handler.OrderHandler
	Webhook     *handler.WebhookHandler
	AdminOrders *handler.AdminOrderHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, handler.SuccessResponse{Message: "ok"})
	})

	h.Auth.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, cfg, userRepo)
	h.Checkout.RegisterRoutes(e, cfg)
	h.Orders.RegisterRoutes(e, cfg, userRepo)
	h.Webhook.RegisterRoutes(e)
	h.AdminOrders.RegisterRoutes(e, cfg, userRepo)
}

package handler

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"github.com/labstack/echo/v4"
)

// /checkout のHTTP（ゲストも使う）
type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

// 会員は items と email を送らない（DBのカートとアカウントのメールを使う）
type CheckoutRequest struct {
	Items []usecase.CartLine `json:"items"`
	Email string             `json:"email"`
}

type RetryCheckoutRequest struct {
	Email string `json:"email"`
}

type RedirectResponse struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/checkout")
	g.Use(middleware.OptionalAuthJWT(cfg))

	g.POST("", h.checkout)
	g.POST("/orders/:id/session", h.retry)
	g.GET("/orders/:id", h.status)
}

func (h *CheckoutHandler) checkout(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	in := usecase.CheckoutInput{Identity: identityFromContext(c)}
	if !in.Identity.IsAuthenticated() {
		if err := validator.ValidateGuestCart(req.Items); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation error"})
		}
		if err := validator.ValidateGuestEmail(req.Email); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation error"})
		}
		in.GuestItems = req.Items
		in.GuestEmail = req.Email
	}

	//戻り先URLはクライアントに選ばせない（FE_URL固定）
	out, err := h.uc.Checkout(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *CheckoutHandler) retry(c echo.Context) error {
	var req RetryCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	orderID := c.Param("id")
	redirectURL, err := h.uc.RetryCheckout(c.Request().Context(), identityFromContext(c), orderID, req.Email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, RedirectResponse{OrderID: orderID, RedirectURL: redirectURL})
}

// ゲストはここがPAIDになったらローカルのカートを消す
func (h *CheckoutHandler) status(c echo.Context) error {
	out, err := h.uc.GetPaymentStatus(c.Request().Context(), identityFromContext(c), c.Param("id"), c.QueryParam("email"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

package handler

import (
	"errors"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// エラーレスポンス。種別ごとに必要なIDだけ入る。
type ErrorResponse struct {
	Error      string  `json:"error"`
	ProductIDs []int64 `json:"product_ids,omitempty"`
	ProductID  int64   `json:"product_id,omitempty"`
	OrderID    string  `json:"order_id,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

// usecaseのエラーをステータスに変える
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	var (
		unavailable *usecase.ProductsUnavailableError
		stockErr    *usecase.InsufficientStockError
		providerErr *usecase.PaymentProviderError
	)
	switch {
	case errors.As(err, &unavailable):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "products unavailable", ProductIDs: unavailable.ProductIDs})
	case errors.As(err, &stockErr):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "insufficient stock", ProductID: stockErr.ProductID})
	case errors.As(err, &providerErr):
		//注文は残っているので order_id を返して再試行させる
		c.Set(middleware.CtxErrorKey, err)
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "payment provider error", OrderID: providerErr.OrderID})
	case errors.Is(err, usecase.ErrProductUnavailable):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "product unavailable"})
	case errors.Is(err, usecase.ErrInvalidOrderRequest):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order request"})
	case errors.Is(err, usecase.ErrInvalidSignature):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid signature"})
	case errors.Is(err, usecase.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, usecase.ErrInvalidStatusTransition):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid status transition"})
	}

	//500
	c.Set(middleware.CtxErrorKey, err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

//middleware.AuthJWT が c.Set("user_id", int64) した値を取り出す

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v := c.Get(middleware.CtxUserIDKey)
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	if !ok {
		return 0, false
	}

	return id, true
}

// OptionalAuthJWT の後ろで使う。トークンが無ければゲスト。
func identityFromContext(c echo.Context) usecase.Identity {
	if id, ok := getUserIDFromContext(c); ok && id > 0 {
		return usecase.UserIdentity(id)
	}
	return usecase.GuestIdentity()
}

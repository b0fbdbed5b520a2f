package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP
type CartHandler struct {
	carts    *usecase.CartUsecase
	resolver *usecase.CartResolver
}

// DI
func NewCartHandler(carts *usecase.CartUsecase, resolver *usecase.CartResolver) *CartHandler {
	return &CartHandler{carts: carts, resolver: resolver}
}

// ゲストはクライアントが持つカートを送ってくる
type ResolveCartRequest struct {
	Items []usecase.CartLine `json:"items"`
}

type AddCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity int64 `json:"quantity"`
}

// /cart/resolve, /cart/items を登録
func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	e.POST("/cart/resolve", h.resolve, middleware.OptionalAuthJWT(cfg))

	g := e.Group("/cart")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.ActiveUserGuard(userRepo))

	g.POST("/items", h.addItem)
	g.PATCH("/items/:productId", h.updateItem)
	g.DELETE("/items/:productId", h.deleteItem)
	g.DELETE("", h.clear)
}

func (h *CartHandler) resolve(c echo.Context) error {
	var req ResolveCartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	id := identityFromContext(c)
	if !id.IsAuthenticated() {
		if err := validator.ValidateGuestCart(req.Items); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation error"})
		}
	}

	out, err := h.resolver.Resolve(c.Request().Context(), id, req.Items)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) addItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req AddCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.carts.AddToCart(c.Request().Context(), userID, req.ProductID, req.Quantity); err != nil {
		return writeError(c, err)
	}
	return h.snapshot(c, userID)
}

func (h *CartHandler) updateItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req UpdateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.carts.UpdateQuantity(c.Request().Context(), userID, productID, req.Quantity); err != nil {
		return writeError(c, err)
	}
	return h.snapshot(c, userID)
}

func (h *CartHandler) deleteItem(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.carts.RemoveFromCart(c.Request().Context(), userID, productID); err != nil {
		return writeError(c, err)
	}
	return h.snapshot(c, userID)
}

func (h *CartHandler) clear(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	if err := h.carts.ClearCart(c.Request().Context(), userID); err != nil {
		return writeError(c, err)
	}
	return h.snapshot(c, userID)
}

// 更新後のカートを返す
func (h *CartHandler) snapshot(c echo.Context, userID int64) error {
	out, err := h.resolver.Resolve(c.Request().Context(), usecase.UserIdentity(userID), nil)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

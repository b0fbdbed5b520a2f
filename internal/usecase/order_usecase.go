package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type OrderUsecase struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
}

func NewOrderUsecase(orders repo.OrderRepository, orderItems repo.OrderItemRepository) *OrderUsecase {
	return &OrderUsecase{orders: orders, orderItems: orderItems}
}

type OrderItemOutput struct {
	ProductID       *int64 `json:"product_id"`
	Name            string `json:"name"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	Quantity        int64  `json:"quantity"`
	TotalPriceCents int64  `json:"total_price_cents"`
}

type OrderOutput struct {
	ID            string            `json:"id"`
	UserID        *int64            `json:"user_id"`
	ContactEmail  string            `json:"contact_email"`
	Currency      string            `json:"currency"`
	SubtotalCents int64             `json:"subtotal_cents"`
	TaxCents      int64             `json:"tax_cents"`
	ShippingCents int64             `json:"shipping_cents"`
	TotalCents    int64             `json:"total_cents"`
	OrderStatus   string            `json:"order_status"`
	PaymentStatus string            `json:"payment_status"`
	CreatedAt     time.Time         `json:"created_at"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	Items         []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	orders, total, err := u.orders.ListByUserID(ctx, userID, page, limit)
	if err != nil {
		return OrderListOutput{}, fmt.Errorf("list orders: %w", err)
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.orderItems.ListByOrderID(ctx, o.ID)
		if err != nil {
			return OrderListOutput{}, fmt.Errorf("list order items: %w", err)
		}
		outs = append(outs, toOrderOutput(o, items))
	}

	return OrderListOutput{Items: outs, Total: total, Page: page, Limit: limit}, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, ErrOrderNotFound
	}
	if err != nil {
		return OrderOutput{}, fmt.Errorf("find order: %w", err)
	}
	if o.UserID == nil || *o.UserID != userID {
		//他人の注文は「存在しない扱い」にする
		return OrderOutput{}, ErrOrderNotFound
	}

	items, err := u.orderItems.ListByOrderID(ctx, orderID)
	if err != nil {
		return OrderOutput{}, fmt.Errorf("list order items: %w", err)
	}
	return toOrderOutput(o, items), nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID:       it.ProductID,
			Name:            it.ProductName,
			UnitPriceCents:  it.UnitPriceCents,
			Quantity:        it.Quantity,
			TotalPriceCents: it.TotalPriceCents,
		})
	}

	return OrderOutput{
		ID:            o.ID,
		UserID:        o.UserID,
		ContactEmail:  o.ContactEmail,
		Currency:      o.Currency,
		SubtotalCents: o.SubtotalCents,
		TaxCents:      o.TaxCents,
		ShippingCents: o.ShippingCents,
		TotalCents:    o.TotalCents,
		OrderStatus:   string(o.OrderStatus),
		PaymentStatus: string(o.PaymentStatus),
		CreatedAt:     o.CreatedAt,
		PaidAt:        o.PaidAt,
		Items:         outItems,
	}
}

// OrderOutputに変換（明細は注文に載っているもの）
func ToOrderOutput(o model.Order) OrderOutput {
	return toOrderOutput(o, o.Items)
}

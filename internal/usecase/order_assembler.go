package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/pricing"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

type CreateOrderInput struct {
	Lines []CartLine
	// どちらか片方だけ
	UserID     *int64
	GuestEmail string
}

// カートの行から注文を作る唯一の場所。
// 検証・注文作成・在庫減算は1つのTxで、どれかが失敗したら全部なかったことになる。
type OrderAssembler struct {
	tx       repo.TransactionManager
	policy   pricing.Policy
	currency string
	idGen    IDGenerator
	notifier Notifier
	logger   *zap.Logger
}

func NewOrderAssembler(
	tx repo.TransactionManager,
	policy pricing.Policy,
	currency string,
	idGen IDGenerator,
	notifier Notifier,
	logger *zap.Logger,
) *OrderAssembler {
	if policy == nil {
		policy = pricing.Zero{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderAssembler{
		tx:       tx,
		policy:   policy,
		currency: strings.ToLower(currency),
		idGen:    idGen,
		notifier: notifier,
		logger:   logger,
	}
}

func (a *OrderAssembler) CreateOrder(ctx context.Context, in CreateOrderInput) (model.Order, error) {
	hasUser := in.UserID != nil && *in.UserID > 0
	guestEmail := strings.ToLower(strings.TrimSpace(in.GuestEmail))
	hasGuest := guestEmail != ""

	//ストレージに触る前に弾く
	if hasUser == hasGuest {
		return model.Order{}, fmt.Errorf("%w: exactly one of user or guest email is required", ErrInvalidOrderRequest)
	}
	if hasGuest {
		if _, err := mail.ParseAddress(guestEmail); err != nil {
			return model.Order{}, fmt.Errorf("%w: invalid guest email", ErrInvalidOrderRequest)
		}
	}
	if len(in.Lines) == 0 {
		return model.Order{}, fmt.Errorf("%w: cart is empty", ErrInvalidOrderRequest)
	}
	for _, l := range in.Lines {
		if l.ProductID <= 0 || l.Quantity < 1 {
			return model.Order{}, fmt.Errorf("%w: invalid line", ErrInvalidOrderRequest)
		}
	}
	lines := NormalizeLines(in.Lines)

	var order model.Order

	err := a.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		contact := guestEmail
		if hasUser {
			user, err := r.Users().FindByID(ctx, *in.UserID)
			if errors.Is(err, repo.ErrUserNotFound) {
				return fmt.Errorf("%w: unknown user", ErrInvalidOrderRequest)
			}
			if err != nil {
				return fmt.Errorf("find user: %w", err)
			}
			contact = user.Email
		}

		//1回で取得（公開中のみ）
		products, err := r.Products().FindActiveByIDs(ctx, productIDs(lines))
		if err != nil {
			return fmt.Errorf("find products: %w", err)
		}
		byID := make(map[int64]model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		var missing []int64
		for _, l := range lines {
			if _, ok := byID[l.ProductID]; !ok {
				missing = append(missing, l.ProductID)
			}
		}
		if len(missing) > 0 {
			return &ProductsUnavailableError{ProductIDs: missing}
		}

		//全行チェックしてから書く
		for _, l := range lines {
			if byID[l.ProductID].Stock < l.Quantity {
				return &InsufficientStockError{ProductID: l.ProductID}
			}
		}

		//価格は今の商品価格で確定（カートの価格は使わない）
		items := make([]model.OrderItem, 0, len(lines))
		var subtotal int64
		for _, l := range lines {
			p := byID[l.ProductID]
			pid := p.ID
			lineTotal := p.PriceCents * l.Quantity
			items = append(items, model.OrderItem{
				ProductID:       &pid,
				ProductName:     p.Name,
				Quantity:        l.Quantity,
				UnitPriceCents:  p.PriceCents,
				TotalPriceCents: lineTotal,
			})
			subtotal += lineTotal
		}
		tax, shipping := a.policy.Quote(subtotal, a.currency)

		order = model.Order{
			ID:            a.idGen.NewID(),
			ContactEmail:  contact,
			Currency:      a.currency,
			SubtotalCents: subtotal,
			TaxCents:      tax,
			ShippingCents: shipping,
			TotalCents:    subtotal + tax + shipping,
			OrderStatus:   model.OrderStatusDraft,
			PaymentStatus: model.PaymentStatusPending,
		}
		if hasUser {
			uid := *in.UserID
			order.UserID = &uid
		} else {
			order.GuestEmail = &guestEmail
		}

		if err := r.Orders().Create(ctx, &order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
			return fmt.Errorf("create order items: %w", err)
		}

		//条件付き減算。同時注文に負けたらここで全部ロールバック
		for _, l := range lines {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return fmt.Errorf("decrease stock: %w", err)
			}
			if !ok {
				return &InsufficientStockError{ProductID: l.ProductID}
			}
		}

		order.Items = items
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}

	a.sendOrderConfirmation(ctx, order)
	return order, nil
}

// 通知の失敗は注文の成否に影響させない
func (a *OrderAssembler) sendOrderConfirmation(ctx context.Context, order model.Order) {
	if a.notifier == nil {
		return
	}
	nctx, cancel := notifyContext(ctx)
	defer cancel()

	if err := a.notifier.SendOrderConfirmation(nctx, order); err != nil {
		a.logger.Error("order confirmation failed",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/payments"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

// 決済セッション作成の待ち時間の上限
const providerTimeout = 20 * time.Second

type CheckoutInput struct {
	Identity   Identity
	GuestItems []CartLine
	GuestEmail string
	// 空なら FE_URL から作る
	SuccessURL string
	CancelURL  string
}

type CheckoutResult struct {
	Order       OrderOutput `json:"order"`
	RedirectURL string      `json:"redirect_url"`
}

// 決済の状態確認（ゲストはこれを見てローカルのカートを消す）
type PaymentStatusOutput struct {
	OrderID       string `json:"order_id"`
	OrderStatus   string `json:"order_status"`
	PaymentStatus string `json:"payment_status"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
}

// 注文を決済サービスに渡し、リダイレクト先を返す
type CheckoutUsecase struct {
	tx        repo.TransactionManager
	orders    repo.OrderRepository
	items     repo.OrderItemRepository
	resolver  *CartResolver
	assembler *OrderAssembler
	carts     *CartUsecase
	provider  payments.Provider
	feURL     string
	logger    *zap.Logger
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	resolver *CartResolver,
	assembler *OrderAssembler,
	carts *CartUsecase,
	provider payments.Provider,
	feURL string,
	logger *zap.Logger,
) *CheckoutUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutUsecase{
		tx:        tx,
		orders:    orders,
		items:     items,
		resolver:  resolver,
		assembler: assembler,
		carts:     carts,
		provider:  provider,
		feURL:     strings.TrimRight(feURL, "/"),
		logger:    logger,
	}
}

// カート解決 → 注文作成 → 会員カートを空に → 決済セッション。
// 決済セッションで失敗しても注文は残り、結果に入れて返す。
func (u *CheckoutUsecase) Checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	lines, err := u.resolver.Lines(ctx, in.Identity, in.GuestItems)
	if err != nil {
		return CheckoutResult{}, err
	}

	orderIn := CreateOrderInput{Lines: lines}
	if in.Identity.IsAuthenticated() {
		orderIn.UserID = in.Identity.UserID
	} else {
		orderIn.GuestEmail = in.GuestEmail
	}

	order, err := u.assembler.CreateOrder(ctx, orderIn)
	if err != nil {
		return CheckoutResult{}, err
	}
	result := CheckoutResult{Order: ToOrderOutput(order)}

	//会員はすぐ空にする。ゲストは決済完了までクライアントに残す
	if in.Identity.IsAuthenticated() {
		if err := u.carts.ClearCart(ctx, *in.Identity.UserID); err != nil {
			u.logger.Error("clear cart after order failed",
				zap.Int64("user_id", *in.Identity.UserID),
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}

	redirectURL, err := u.StartCheckout(ctx, order, in.SuccessURL, in.CancelURL)
	if err != nil {
		return result, err
	}
	result.RedirectURL = redirectURL
	return result, nil
}

// 決済セッションを作り、注文に紐付けてPENDINGにする。
// 明細は注文作成時のものをそのまま使う。
func (u *CheckoutUsecase) StartCheckout(ctx context.Context, order model.Order, successURL string, cancelURL string) (string, error) {
	if !canStartCheckout(order) {
		return "", ErrInvalidStatusTransition
	}

	items := order.Items
	if len(items) == 0 {
		loaded, err := u.items.ListByOrderID(ctx, order.ID)
		if err != nil {
			return "", fmt.Errorf("list order items: %w", err)
		}
		items = loaded
	}

	if successURL == "" {
		successURL = u.returnURL("/checkout/success", order.ID)
	}
	if cancelURL == "" {
		cancelURL = u.returnURL("/checkout/cancel", order.ID)
	}

	pctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	session, err := u.provider.CreateCheckoutSession(pctx, payments.CheckoutSessionRequest{
		OrderID:       order.ID,
		Currency:      order.Currency,
		CustomerEmail: order.ContactEmail,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		Items:         lineItems(order, items),
	})
	if err != nil {
		return "", &PaymentProviderError{OrderID: order.ID, Err: err}
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		current, err := r.Orders().FindByIDForUpdate(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		// セッション作成中にWebhookで支払い済みになっていたら付け替えない
		if !canStartCheckout(current) {
			return ErrInvalidStatusTransition
		}

		upd := repo.OrderUpdate{CheckoutSessionID: &session.ID}
		// 再試行ならPENDINGのままセッションIDだけ付け替える
		if current.OrderStatus == model.OrderStatusDraft {
			pending := model.OrderStatusPending
			upd.OrderStatus = &pending
		}
		return r.Orders().Update(ctx, order.ID, upd)
	})
	if errors.Is(err, ErrInvalidStatusTransition) {
		u.logger.Warn("order settled while creating checkout session; session discarded",
			zap.String("order_id", order.ID),
			zap.String("session_id", session.ID),
		)
		return "", ErrInvalidStatusTransition
	}
	if err != nil {
		// セッションは作れているので注文IDを返して再試行させる
		return "", &PaymentProviderError{OrderID: order.ID, Err: fmt.Errorf("attach checkout session: %w", err)}
	}

	u.logger.Info("checkout session attached",
		zap.String("order_id", order.ID),
		zap.String("session_id", session.ID),
	)
	return session.RedirectURL, nil
}

// 途中で離脱した注文の決済をやり直す
func (u *CheckoutUsecase) RetryCheckout(ctx context.Context, id Identity, orderID string, email string) (string, error) {
	order, err := u.findOwnedOrder(ctx, id, orderID, email)
	if err != nil {
		return "", err
	}
	return u.StartCheckout(ctx, order, "", "")
}

func (u *CheckoutUsecase) GetPaymentStatus(ctx context.Context, id Identity, orderID string, email string) (PaymentStatusOutput, error) {
	order, err := u.findOwnedOrder(ctx, id, orderID, email)
	if err != nil {
		return PaymentStatusOutput{}, err
	}
	return PaymentStatusOutput{
		OrderID:       order.ID,
		OrderStatus:   string(order.OrderStatus),
		PaymentStatus: string(order.PaymentStatus),
		TotalCents:    order.TotalCents,
		Currency:      order.Currency,
	}, nil
}

// 会員なら持ち主、ゲスト注文なら注文時のメールが一致すること。
// 一致しなければ存在しない扱い。
func (u *CheckoutUsecase) findOwnedOrder(ctx context.Context, id Identity, orderID string, email string) (model.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return model.Order{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	order, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("find order: %w", err)
	}

	ownedByUser := id.IsAuthenticated() && order.UserID != nil && *order.UserID == *id.UserID
	// 決済時にアカウントへ紐付いたゲスト注文もメールで見られる
	ownedByGuest := order.GuestEmail != nil && email != "" &&
		strings.EqualFold(strings.TrimSpace(email), *order.GuestEmail)

	if !ownedByUser && !ownedByGuest {
		return model.Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (u *CheckoutUsecase) returnURL(path string, orderID string) string {
	return u.feURL + path + "?order_id=" + url.QueryEscape(orderID)
}

func canStartCheckout(o model.Order) bool {
	if o.PaymentStatus != model.PaymentStatusPending {
		return false
	}
	return o.OrderStatus == model.OrderStatusDraft || o.OrderStatus == model.OrderStatusPending
}

// 税と送料は別の明細にして、決済額を注文の合計に合わせる
func lineItems(order model.Order, items []model.OrderItem) []payments.LineItem {
	out := make([]payments.LineItem, 0, len(items)+2)
	for _, it := range items {
		out = append(out, payments.LineItem{
			Name:            it.ProductName,
			Quantity:        it.Quantity,
			UnitAmountCents: it.UnitPriceCents,
		})
	}
	if order.TaxCents > 0 {
		out = append(out, payments.LineItem{Name: "Tax", Quantity: 1, UnitAmountCents: order.TaxCents})
	}
	if order.ShippingCents > 0 {
		out = append(out, payments.LineItem{Name: "Shipping", Quantity: 1, UnitAmountCents: order.ShippingCents})
	}
	return out
}

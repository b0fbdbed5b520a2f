package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	infrarepo "storefront/internal/infra/repository"
	"storefront/internal/payments"
	"storefront/internal/pricing"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("order-%d", g.n)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingNotifier struct {
	mu      sync.Mutex
	orders  []model.Order
	payment []model.Order
	err     error
}

func (n *recordingNotifier) SendOrderConfirmation(_ context.Context, o model.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, o)
	return n.err
}

func (n *recordingNotifier) SendPaymentConfirmation(_ context.Context, o model.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payment = append(n.payment, o)
	return n.err
}

func (n *recordingNotifier) paymentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.payment)
}

type fakeProvider struct {
	mu       sync.Mutex
	requests []payments.CheckoutSessionRequest
	err      error
	n        int
	// セッションを返す前に呼ばれる
	onCreate func()
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	if p.onCreate != nil {
		p.onCreate()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return payments.CheckoutSession{}, p.err
	}
	p.n++
	id := fmt.Sprintf("cs_%d", p.n)
	return payments.CheckoutSession{ID: id, RedirectURL: "https://pay.test/" + id}, nil
}

func (p *fakeProvider) VerifyAndParseEvent([]byte, string) (payments.Event, error) {
	return payments.Event{}, errors.New("not used")
}

type testEnv struct {
	db        *gorm.DB
	tx        *infrarepo.TxManagerGorm
	carts     *CartUsecase
	resolver  *CartResolver
	assembler *OrderAssembler
	notifier  *recordingNotifier
	clock     fixedClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithPolicy(t, pricing.Zero{})
}

func newTestEnvWithPolicy(t *testing.T, policy pricing.Policy) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	tx := infrarepo.NewTxManagerGorm(db)
	carts := NewCartUsecase(tx)
	notifier := &recordingNotifier{}

	return &testEnv{
		db:    db,
		tx:    tx,
		carts: carts,
		resolver: NewCartResolver(
			infrarepo.NewProductGormRepository(db),
			infrarepo.NewCartGormRepository(db),
			infrarepo.NewCartItemGormRepository(db),
			carts,
		),
		assembler: NewOrderAssembler(tx, policy, "usd", &seqIDGen{}, notifier, nil),
		notifier:  notifier,
		clock:     fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func (e *testEnv) checkout(provider payments.Provider) *CheckoutUsecase {
	return NewCheckoutUsecase(
		e.tx,
		infrarepo.NewOrderGormRepository(e.db),
		infrarepo.NewOrderItemGormRepository(e.db),
		e.resolver,
		e.assembler,
		e.carts,
		provider,
		"https://shop.test/",
		nil,
	)
}

func (e *testEnv) loadOrder(t *testing.T, id string) model.Order {
	t.Helper()
	o, err := infrarepo.NewOrderGormRepository(e.db).FindByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (e *testEnv) cartQuantity(t *testing.T, userID, productID int64) int64 {
	t.Helper()
	lines, err := e.resolver.Lines(context.Background(), UserIdentity(userID), nil)
	require.NoError(t, err)
	for _, l := range lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

func ptr[T any](v T) *T { return &v }

// Stripeの署名ヘッダを作る
func signPayload(payload []byte) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func completedEventPayload(eventID, orderID, email string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"metadata": {"order_id": %q},
			"payment_intent": "pi_1",
			"customer_details": {
				"email": %q,
				"name": "Alice",
				"address": {"line1": "1 Main St", "city": "Springfield", "postal_code": "12345", "country": "US"}
			}
		}}
	}`, eventID, orderID, email))
}

// =====================
// Tx内のRepositoryを差し替える
// =====================

type hookedTx struct {
	repo.TransactionManager
	wrap func(repo.TxRepos) repo.TxRepos
}

func (h hookedTx) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return h.TransactionManager.WithinTx(ctx, func(r repo.TxRepos) error {
		return fn(h.wrap(r))
	})
}

type hookedRepos struct {
	repo.TxRepos
	inventory repo.InventoryRepository
	orders    repo.OrderRepository
}

func (r hookedRepos) Inventory() repo.InventoryRepository {
	if r.inventory != nil {
		return r.inventory
	}
	return r.TxRepos.Inventory()
}

func (r hookedRepos) Orders() repo.OrderRepository {
	if r.orders != nil {
		return r.orders
	}
	return r.TxRepos.Orders()
}

// lost の商品だけ条件付きUPDATEが負ける（読み取り後に他のTxが在庫を取った）
type lostRaceInventory struct {
	repo.InventoryRepository
	lost int64
}

func (i lostRaceInventory) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	if productID == i.lost {
		return false, nil
	}
	return i.InventoryRepository.DecreaseStockIfEnough(ctx, productID, qty)
}

type failingOrderUpdate struct {
	repo.OrderRepository
	err error
}

func (o failingOrderUpdate) Update(context.Context, string, repo.OrderUpdate) error {
	return o.err
}

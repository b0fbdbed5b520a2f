package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/domain/model"
	"storefront/internal/payments"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

// Webhookの処理結果（ログとテスト用）
type PaymentOutcome string

const (
	OutcomeApplied   PaymentOutcome = "applied"
	OutcomeDuplicate PaymentOutcome = "duplicate"
	OutcomeIgnored   PaymentOutcome = "ignored"
	OutcomeRejected  PaymentOutcome = "rejected"
)

// 決済完了イベントを注文に反映する。
// 同じイベントが何度来ても結果は1回分。
type PaymentWebhookUsecase struct {
	tx       repo.TransactionManager
	provider payments.Provider
	ledger   EventLedger
	notifier Notifier
	clock    Clock
	logger   *zap.Logger
}

func NewPaymentWebhookUsecase(
	tx repo.TransactionManager,
	provider payments.Provider,
	ledger EventLedger,
	notifier Notifier,
	clock Clock,
	logger *zap.Logger,
) *PaymentWebhookUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentWebhookUsecase{
		tx:       tx,
		provider: provider,
		ledger:   ledger,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// エラーを返したらプロバイダに再送させる（署名エラーは除く）
func (u *PaymentWebhookUsecase) HandlePaymentEvent(ctx context.Context, payload []byte, signature string) (PaymentOutcome, error) {
	ev, err := u.provider.VerifyAndParseEvent(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return OutcomeRejected, ErrInvalidSignature
		}
		return OutcomeRejected, fmt.Errorf("parse event: %w", err)
	}

	log := u.logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	if ev.Type != payments.EventCheckoutCompleted {
		return OutcomeIgnored, nil
	}
	if ev.OrderID == "" {
		//再送しても直らないので受け取って終わり
		log.Warn("payment event without order id")
		return OutcomeIgnored, nil
	}
	log = log.With(zap.String("order_id", ev.OrderID))

	if u.ledger != nil && ev.ID != "" {
		seen, err := u.ledger.Seen(ctx, ev.ID)
		if err != nil {
			log.Warn("event ledger lookup failed", zap.Error(err))
		}
		if seen {
			return OutcomeDuplicate, nil
		}
	}

	var (
		outcome PaymentOutcome
		paid    model.Order
	)

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, ev.OrderID)
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn("payment event for unknown order")
			outcome = OutcomeIgnored
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		//適用済みなら何もしない
		if o.PaymentStatus != model.PaymentStatusPending && o.PaymentStatus != model.PaymentStatusFailed {
			outcome = OutcomeDuplicate
			return nil
		}

		before := statusSnapshot(o)
		now := u.clock.Now()
		paidStatus := model.PaymentStatusPaid
		upd := repo.OrderUpdate{PaymentStatus: &paidStatus, PaidAt: &now}

		switch o.OrderStatus {
		case model.OrderStatusDraft, model.OrderStatusPending:
			orderPaid := model.OrderStatusPaid
			upd.OrderStatus = &orderPaid
		case model.OrderStatusCanceled:
			//キャンセル済みに入金。状態は戻さず手動返金に回す
			log.Warn("payment received for canceled order; manual refund required")
		}

		if ev.PaymentIntentID != "" {
			upd.PaymentIntentID = &ev.PaymentIntentID
		}
		if ev.BillingAddress != nil {
			s, err := addressJSON(ev.BillingAddress)
			if err != nil {
				return err
			}
			upd.BillingAddressJSON = &s
		}
		if ev.ShippingAddress != nil {
			s, err := addressJSON(ev.ShippingAddress)
			if err != nil {
				return err
			}
			upd.ShippingAddressJSON = &s
		}

		//ゲスト注文を既存アカウントに紐付け（このタイミングだけ）
		linked := false
		if o.UserID == nil && (ev.CustomerID != "" || ev.CustomerEmail != "") {
			user, err := r.Users().FindByEmail(ctx, o.ContactEmail)
			switch {
			case err == nil && user.IsActive:
				upd.UserID = &user.ID
				linked = true
			case err == nil, errors.Is(err, repo.ErrUserNotFound):
			default:
				return fmt.Errorf("find account: %w", err)
			}
		}

		if err := r.Orders().Update(ctx, o.ID, upd); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		applyUpdate(&o, upd)
		if err := writeAudit(ctx, r, model.SystemActorID, model.AuditActionOrderPaid, o.ID, before, statusSnapshot(o)); err != nil {
			return err
		}
		if linked {
			if err := writeAudit(ctx, r, model.SystemActorID, model.AuditActionLinkGuestOrder, o.ID,
				map[string]interface{}{"user_id": nil},
				map[string]interface{}{"user_id": *upd.UserID},
			); err != nil {
				return err
			}
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}
		o.Items = items

		paid = o
		outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		return OutcomeRejected, err
	}

	if u.ledger != nil && ev.ID != "" {
		if err := u.ledger.Mark(ctx, ev.ID); err != nil {
			log.Warn("event ledger write failed", zap.Error(err))
		}
	}

	if outcome == OutcomeApplied {
		log.Info("payment applied", zap.Bool("linked_account", paid.UserID != nil && paid.GuestEmail != nil))
		u.sendPaymentConfirmation(ctx, paid)
	}
	return outcome, nil
}

func (u *PaymentWebhookUsecase) sendPaymentConfirmation(ctx context.Context, order model.Order) {
	if u.notifier == nil {
		return
	}
	nctx, cancel := notifyContext(ctx)
	defer cancel()

	if err := u.notifier.SendPaymentConfirmation(nctx, order); err != nil {
		u.logger.Error("payment confirmation failed",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func addressJSON(a *model.Address) (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal address: %w", err)
	}
	return string(b), nil
}

// 更新内容を手元の注文にも反映
func applyUpdate(o *model.Order, upd repo.OrderUpdate) {
	if upd.OrderStatus != nil {
		o.OrderStatus = *upd.OrderStatus
	}
	if upd.PaymentStatus != nil {
		o.PaymentStatus = *upd.PaymentStatus
	}
	if upd.UserID != nil {
		o.UserID = upd.UserID
	}
	if upd.CheckoutSessionID != nil {
		o.CheckoutSessionID = upd.CheckoutSessionID
	}
	if upd.PaymentIntentID != nil {
		o.PaymentIntentID = upd.PaymentIntentID
	}
	if upd.ShippingAddressJSON != nil {
		o.ShippingAddressJSON = *upd.ShippingAddressJSON
	}
	if upd.BillingAddressJSON != nil {
		o.BillingAddressJSON = *upd.BillingAddressJSON
	}
	if upd.PaidAt != nil {
		o.PaidAt = upd.PaidAt
	}
}

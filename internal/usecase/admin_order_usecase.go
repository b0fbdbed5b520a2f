package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type AdminOrderUsecase struct {
	tx repo.TransactionManager
}

func NewAdminOrderUsecase(tx repo.TransactionManager) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 管理者が動かせる遷移
var adminTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusDraft:     {model.OrderStatusCanceled},
	model.OrderStatusPending:   {model.OrderStatusCanceled},
	model.OrderStatusPaid:      {model.OrderStatusFulfilled, model.OrderStatusCanceled, model.OrderStatusRefunded},
	model.OrderStatusFulfilled: {model.OrderStatusRefunded},
}

func canTransition(from, to model.OrderStatus) bool {
	for _, s := range adminTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ステータス更新（CANCELED なら在庫戻し、REFUNDED なら決済も返金済み）
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID string, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus := model.OrderStatus(strings.ToUpper(strings.TrimSpace(in.Status)))
	switch newStatus {
	case model.OrderStatusDraft, model.OrderStatusPending, model.OrderStatusPaid,
		model.OrderStatusFulfilled, model.OrderStatusCanceled, model.OrderStatusRefunded:
		// OK
	default:
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}

		// すでに同じなら何もしない（200）
		if o.OrderStatus == newStatus {
			out = toOrderOutput(o, items)
			return nil
		}
		if !canTransition(o.OrderStatus, newStatus) {
			return ErrInvalidStatusTransition
		}

		before := statusSnapshot(o)
		upd := repo.OrderUpdate{OrderStatus: &newStatus}

		switch newStatus {
		case model.OrderStatusCanceled:
			for _, it := range items {
				// 商品が消えていたら戻し先がない
				if it.ProductID == nil {
					continue
				}
				err := r.Inventory().IncreaseStock(ctx, *it.ProductID, it.Quantity)
				if err != nil && !errors.Is(err, repo.ErrNotFound) {
					return fmt.Errorf("restore stock: %w", err)
				}
			}
		case model.OrderStatusRefunded:
			refunded := model.PaymentStatusRefunded
			upd.PaymentStatus = &refunded
		}

		if err := r.Orders().Update(ctx, orderID, upd); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		applyUpdate(&o, upd)

		if err := writeAudit(ctx, r, actorAdminUserID, model.AuditActionUpdateOrderStatus, orderID, before, statusSnapshot(o)); err != nil {
			return err
		}

		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func statusSnapshot(o model.Order) map[string]interface{} {
	return map[string]interface{}{
		"order_status":   o.OrderStatus,
		"payment_status": o.PaymentStatus,
	}
}

// 監査ログ（before/afterはJSON）
func writeAudit(ctx context.Context, r repo.TxRepos, actorID int64, action model.AuditAction, orderID string, before, after interface{}) error {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}

	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: model.AuditResourceOrder,
		ResourceID:   orderID,
		BeforeJSON:   string(beforeJSON),
		AfterJSON:    string(afterJSON),
	}); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

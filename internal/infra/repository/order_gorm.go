package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	return r.find(r.db.WithContext(ctx), orderID)
}

// SELECT ... FOR UPDATE。Tx外で呼ぶと意味がない。
func (r *OrderGormRepository) FindByIDForUpdate(ctx context.Context, orderID string) (model.Order, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
}

func (r *OrderGormRepository) find(db *gorm.DB, orderID string) (model.Order, error) {
	var o model.Order
	err := db.Where("id = ?", orderID).First(&o).Error
	if isNotFound(err) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}

// 指定された項目だけ更新する。金額や明細はここでは変えられない。
func (r *OrderGormRepository) Update(ctx context.Context, orderID string, upd repo.OrderUpdate) error {
	if upd.IsEmpty() {
		return nil
	}

	fields := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if upd.OrderStatus != nil {
		fields["order_status"] = *upd.OrderStatus
	}
	if upd.PaymentStatus != nil {
		fields["payment_status"] = *upd.PaymentStatus
	}
	if upd.UserID != nil {
		fields["user_id"] = *upd.UserID
	}
	if upd.CheckoutSessionID != nil {
		fields["checkout_session_id"] = *upd.CheckoutSessionID
	}
	if upd.PaymentIntentID != nil {
		fields["payment_intent_id"] = *upd.PaymentIntentID
	}
	if upd.ShippingAddressJSON != nil {
		fields["shipping_address_json"] = *upd.ShippingAddressJSON
	}
	if upd.BillingAddressJSON != nil {
		fields["billing_address_json"] = *upd.BillingAddressJSON
	}
	if upd.PaidAt != nil {
		fields["paid_at"] = *upd.PaidAt
	}

	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(fields)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

package notify

import (
	"context"

	"storefront/internal/domain/model"

	"go.uber.org/zap"
)

// ブローカー未設定のとき用。ログに出すだけ。
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOrderConfirmation(_ context.Context, order model.Order) error {
	n.log(TypeOrderConfirmation, order)
	return nil
}

func (n *LogNotifier) SendPaymentConfirmation(_ context.Context, order model.Order) error {
	n.log(TypePaymentConfirmation, order)
	return nil
}

func (n *LogNotifier) log(typ string, order model.Order) {
	n.logger.Info("notification",
		zap.String("type", typ),
		zap.String("order_id", order.ID),
		zap.String("email", order.ContactEmail),
		zap.Int64("total_cents", order.TotalCents),
	)
}

package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain/model"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"
)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	Logger        *zap.Logger
	// テスト用
	Sessions stripeSessionAPI
}

// Stripe Checkoutを使うProvider
type StripeProvider struct {
	sessions      stripeSessionAPI
	webhookSecret string
	logger        *zap.Logger
}

func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sc := client.New(apiKey, nil)
		sessions = sc.CheckoutSessions
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StripeProvider{
		sessions:      sessions,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}, nil
}

// Checkoutセッションを作る。
// 注文IDはセッションとPaymentIntentの両方のmetadataに入れる。
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if req.OrderID == "" {
		return CheckoutSession{}, errors.New("stripe: order id is required")
	}
	if len(req.Items) == 0 {
		return CheckoutSession{}, errors.New("stripe: line items are required")
	}

	currency := strings.ToLower(req.Currency)
	metadata := map[string]string{MetadataOrderID: req.OrderID}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataOrderID: req.OrderID},
		},
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(item.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(item.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}
	params.LineItems = lineItems

	session, err := p.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	intentID := ""
	if session.PaymentIntent != nil {
		intentID = session.PaymentIntent.ID
	}

	p.logger.Info("stripe checkout session created",
		zap.String("order_id", req.OrderID),
		zap.String("session_id", session.ID),
	)

	return CheckoutSession{
		ID:          session.ID,
		RedirectURL: session.URL,
		IntentID:    intentID,
	}, nil
}

// 署名を検証してイベントを取り出す。
// 決済完了以外はIDと種別だけ返す。
func (p *StripeProvider) VerifyAndParseEvent(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != EventCheckoutCompleted || ev.Data == nil {
		return out, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
		// 署名は正しいので再送しても直らない。注文IDなしとして扱う
		p.logger.Warn("stripe checkout session payload is malformed",
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
		return out, nil
	}

	out.OrderID = session.Metadata[MetadataOrderID]
	if out.OrderID == "" {
		out.OrderID = session.ClientReferenceID
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}

	out.CustomerEmail = session.CustomerEmail
	if d := session.CustomerDetails; d != nil {
		if d.Email != "" {
			out.CustomerEmail = d.Email
		}
		out.BillingAddress = toAddress(d.Name, d.Phone, d.Address)
	}
	if s := session.ShippingDetails; s != nil {
		out.ShippingAddress = toAddress(s.Name, s.Phone, s.Address)
	}

	return out, nil
}

func toAddress(name, phone string, a *stripe.Address) *model.Address {
	if a == nil {
		return nil
	}
	return &model.Address{
		Name:       name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      phone,
	}
}

package pricing

import "github.com/shopspring/decimal"

// 注文作成時に税と送料を決める。結果は注文に固定される。
type Policy interface {
	Quote(subtotalCents int64, currency string) (taxCents int64, shippingCents int64)
}

// 税も送料も0
type Zero struct{}

func (Zero) Quote(int64, string) (int64, int64) { return 0, 0 }

// 一律の税率と送料。
// FreeShippingOverCents が0なら送料無料にはならない。
type FlatRatePolicy struct {
	TaxRatePercent        decimal.Decimal
	ShippingFlatCents     int64
	FreeShippingOverCents int64
}

var hundred = decimal.NewFromInt(100)

func (p FlatRatePolicy) Quote(subtotalCents int64, _ string) (int64, int64) {
	if subtotalCents <= 0 {
		return 0, 0
	}

	// 端数は四捨五入
	tax := decimal.NewFromInt(subtotalCents).
		Mul(p.TaxRatePercent).
		Div(hundred).
		Round(0).
		IntPart()

	shipping := p.ShippingFlatCents
	if p.FreeShippingOverCents > 0 && subtotalCents >= p.FreeShippingOverCents {
		shipping = 0
	}
	return tax, shipping
}

// 設定値から選ぶ。全部0ならZero。
func FromSettings(taxRatePercent decimal.Decimal, shippingFlatCents, freeShippingOverCents int64) Policy {
	if taxRatePercent.IsZero() && shippingFlatCents == 0 {
		return Zero{}
	}
	return FlatRatePolicy{
		TaxRatePercent:        taxRatePercent,
		ShippingFlatCents:     shippingFlatCents,
		FreeShippingOverCents: freeShippingOverCents,
	}
}

package ordering

import (
	"bitbucket.org/mmdatafocus/menu_backend/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Quote struct {
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
}

type QuoteLine struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// ComputeQuote prices quantity units of a product for the given business and mode.
// Amounts are kept exact; rounding happens only when they are displayed.
func ComputeQuote(unitPrice decimal.Decimal, quantity int, business *models.Business, mode models.FulfillmentMode) Quote {
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	tax := subtotal.Mul(business.TaxRate()).Div(hundred)
	fee := decimal.Zero
	if mode == models.FulfillmentModeDelivery {
		fee = business.DeliveryFee
	}
	return Quote{
		UnitPrice:   unitPrice,
		Quantity:    quantity,
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: fee,
		Total:       subtotal.Add(tax).Add(fee),
	}
}

// Lines is the breakdown shown to the customer. Tax and delivery are listed only when non-zero.
func (q Quote) Lines() []QuoteLine {
	lines := []QuoteLine{{Label: "Subtotal", Amount: q.Subtotal}}
	if !q.Tax.IsZero() {
		lines = append(lines, QuoteLine{Label: "Tax", Amount: q.Tax})
	}
	if !q.DeliveryFee.IsZero() {
		lines = append(lines, QuoteLine{Label: "Delivery", Amount: q.DeliveryFee})
	}
	return append(lines, QuoteLine{Label: "Total", Amount: q.Total})
}

func formatAmount(currency string, d decimal.Decimal) string {
	s := d.StringFixed(2)
	if currency == "" {
		return s
	}
	return currency + " " + s
}

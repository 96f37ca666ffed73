package ordering

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/menu_backend/models"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
)

// OrderForm is what the customer fills in on the public menu.
type OrderForm struct {
	ProductId     int    `json:"product_id" validate:"required,gt=0"`
	Quantity      int    `json:"quantity" validate:"required,gte=1,lte=999"`
	Mode          string `json:"mode" validate:"required,oneof=dine-in delivery"`
	CustomerName  string `json:"customer_name" validate:"max=100"`
	Phone         string `json:"phone" validate:"required,max=30"`
	TableId       *int   `json:"table_id" validate:"required_if=Mode dine-in"`
	Address       string `json:"address" validate:"required_if=Mode delivery,max=255"`
	City          string `json:"city" validate:"required_if=Mode delivery,max=100"`
	Region        string `json:"region" validate:"required_if=Mode delivery,max=100"`
	Notes         string `json:"notes" validate:"max=500"`
	PaymentMethod string `json:"payment_method"`
}

func (f *OrderForm) normalize() {
	f.Mode = strings.ToLower(strings.TrimSpace(f.Mode))
	f.CustomerName = strings.TrimSpace(f.CustomerName)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Address = strings.TrimSpace(f.Address)
	f.City = strings.TrimSpace(f.City)
	f.Region = strings.TrimSpace(f.Region)
	f.Notes = strings.TrimSpace(f.Notes)
	f.PaymentMethod = strings.ToLower(strings.TrimSpace(f.PaymentMethod))
}

// validate checks the form on its own and against what the business accepts,
// returning the fulfillment mode and the payment method to record.
func (f *OrderForm) validate(ctx context.Context, business *models.Business) (models.FulfillmentMode, models.PaymentMethod, error) {
	f.normalize()
	if err := utils.Validator().StructCtx(ctx, f); err != nil {
		return "", "", utils.NewValidationError(err)
	}
	if f.TableId != nil && *f.TableId <= 0 {
		return "", "", utils.Invalid("table_id must be positive")
	}
	if len(utils.DigitsOnly(f.Phone)) == 0 {
		return "", "", utils.Invalid("phone must contain digits")
	}

	mode := models.FulfillmentMode(f.Mode)
	if !business.Accepts(mode) {
		return "", "", utils.Invalid(string(mode) + " orders are not available for this business")
	}

	accepted := business.AcceptedPaymentMethods()
	if f.PaymentMethod == "" {
		return mode, accepted[0], nil
	}
	for _, pm := range accepted {
		if string(pm) == f.PaymentMethod {
			return mode, pm, nil
		}
	}
	return "", "", utils.Invalid("payment method " + f.PaymentMethod + " is not accepted")
}

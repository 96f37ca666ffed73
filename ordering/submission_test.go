package ordering

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/menu_backend/models"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeQuote(t *testing.T) {
	rate := dec("19")
	business := &models.Business{TaxRatePercent: &rate, DeliveryFee: dec("50")}

	delivery := ComputeQuote(dec("100"), 2, business, models.FulfillmentModeDelivery)
	assert.True(t, delivery.Subtotal.Equal(dec("200")), delivery.Subtotal.String())
	assert.True(t, delivery.Tax.Equal(dec("38")), delivery.Tax.String())
	assert.True(t, delivery.DeliveryFee.Equal(dec("50")))
	assert.True(t, delivery.Total.Equal(dec("288")), delivery.Total.String())

	dineIn := ComputeQuote(dec("100"), 2, business, models.FulfillmentModeDineIn)
	assert.True(t, dineIn.DeliveryFee.IsZero())
	assert.True(t, dineIn.Total.Equal(dec("238")), dineIn.Total.String())

	untaxed := ComputeQuote(dec("12.5"), 3, &models.Business{}, models.FulfillmentModeDineIn)
	assert.True(t, untaxed.Tax.IsZero())
	assert.True(t, untaxed.Total.Equal(dec("37.5")))
}

func TestQuoteLinesHideZeroAmounts(t *testing.T) {
	labels := func(q Quote) []string {
		var out []string
		for _, l := range q.Lines() {
			out = append(out, l.Label)
		}
		return out
	}
	rate := dec("19")
	full := ComputeQuote(dec("100"), 1, &models.Business{TaxRatePercent: &rate, DeliveryFee: dec("5")}, models.FulfillmentModeDelivery)
	assert.Equal(t, []string{"Subtotal", "Tax", "Delivery", "Total"}, labels(full))

	bare := ComputeQuote(dec("100"), 1, &models.Business{DeliveryFee: dec("5")}, models.FulfillmentModeDineIn)
	assert.Equal(t, []string{"Subtotal", "Total"}, labels(bare))
}

func TestDeepLink(t *testing.T) {
	link := DeepLink("wa.me/", "573001234567", "2 x Café & pan\nTotal: 10")
	assert.True(t, strings.HasPrefix(link, "https://wa.me/573001234567?text="), link)
	assert.NotContains(t, link, "+")
	assert.NotContains(t, link, " ")

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "2 x Café & pan\nTotal: 10", u.Query().Get("text"))
}

type fixture struct {
	store    *models.MemoryStore
	business *models.Business
	product  *models.Product
	table    *models.Table
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := models.NewMemoryStore()
	rate := dec("19")
	business := &models.Business{
		Name:           "Casa Arepa",
		Phone:          "300 123 4567",
		CountryCode:    "57",
		Currency:       "COP",
		TaxRatePercent: &rate,
		DeliveryFee:    dec("50"),
		PaymentMethods: "cash,transfer",
	}
	require.NoError(t, store.PutBusiness(business))
	product, err := store.CreateProduct(ctx, business.ID.String(), &models.NewProduct{Name: "Arepa", Price: dec("100")})
	require.NoError(t, err)
	table, err := store.CreateTable(ctx, business.ID.String(), &models.NewTable{Name: "Terraza 1"})
	require.NoError(t, err)
	return fixture{store: store, business: business, product: product, table: table}
}

func newTestSubmitter(store OrderStore) *Submitter {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewSubmitter(Options{Store: store, MessagingHost: "wa.me", CountryCode: "57", Logger: logger})
}

func deliveryForm(productId int) OrderForm {
	return OrderForm{
		ProductId: productId,
		Quantity:  2,
		Mode:      "delivery",
		Phone:     "311 555 0000",
		Address:   "Calle 10 # 4-20",
		City:      "Medellín",
		Region:    "Antioquia",
	}
}

func TestSubmitDelivery(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f.store)

	receipt, err := s.Submit(context.Background(), f.business, deliveryForm(f.product.ID))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, receipt.Order.Status)
	assert.Equal(t, models.PaymentMethodCash, receipt.Order.PaymentMethod)
	assert.True(t, receipt.Order.Total.Equal(dec("288")))
	require.Len(t, receipt.Order.Items, 1)
	assert.Equal(t, "Arepa", receipt.Order.Items[0].Name)
	assert.Equal(t, 2, receipt.Order.Items[0].Quantity)
	assert.True(t, strings.HasPrefix(receipt.DeepLink, "https://wa.me/573001234567?text="), receipt.DeepLink)
	assert.Contains(t, receipt.Message, "Delivery to Calle 10 # 4-20, Medellín, Antioquia")
	assert.Contains(t, receipt.Message, "Total: COP 288.00")

	orders, err := f.store.ListOrders(context.Background(), f.business.ID.String())
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestSubmitDineIn(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f.store)

	receipt, err := s.Submit(context.Background(), f.business, OrderForm{
		ProductId:     f.product.ID,
		Quantity:      2,
		Mode:          "dine-in",
		Phone:         "3115550000",
		TableId:       &f.table.ID,
		PaymentMethod: "Transfer",
	})
	require.NoError(t, err)
	assert.True(t, receipt.Order.Total.Equal(dec("238")))
	assert.Equal(t, "Terraza 1", receipt.Order.TableName)
	assert.Equal(t, models.PaymentMethodTransfer, receipt.Order.PaymentMethod)
	assert.Contains(t, receipt.Message, "Dine-in, table Terraza 1")
}

func TestSubmitRejectsInvalidForms(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f.store)
	missing := 9999

	tests := []struct {
		name   string
		mutate func(*OrderForm)
	}{
		{"zero quantity", func(o *OrderForm) { o.Quantity = 0 }},
		{"missing phone", func(o *OrderForm) { o.Phone = "  " }},
		{"unknown mode", func(o *OrderForm) { o.Mode = "pickup" }},
		{"delivery without address", func(o *OrderForm) { o.Address = "" }},
		{"delivery without region", func(o *OrderForm) { o.Region = "" }},
		{"dine-in without table", func(o *OrderForm) { o.Mode = "dine-in" }},
		{"dine-in with unknown table", func(o *OrderForm) { o.Mode = "dine-in"; o.TableId = &missing }},
		{"payment not accepted", func(o *OrderForm) { o.PaymentMethod = "card" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := deliveryForm(f.product.ID)
			tt.mutate(&form)
			receipt, err := s.Submit(context.Background(), f.business, form)
			require.Error(t, err)
			assert.True(t, utils.IsValidation(err), err.Error())
			assert.Nil(t, receipt)
		})
	}

	orders, err := f.store.ListOrders(context.Background(), f.business.ID.String())
	require.NoError(t, err)
	assert.Empty(t, orders, "rejected forms must not persist anything")
}

func TestSubmitRespectsBusinessSettings(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f.store)

	closedDelivery := *f.business
	closedDelivery.DeliveryEnabled = utils.NewFalse()
	_, err := s.Submit(context.Background(), &closedDelivery, deliveryForm(f.product.ID))
	assert.True(t, utils.IsValidation(err))

	cashOnly := *f.business
	cashOnly.PaymentMethods = ""
	form := deliveryForm(f.product.ID)
	form.PaymentMethod = "transfer"
	_, err = s.Submit(context.Background(), &cashOnly, form)
	assert.True(t, utils.IsValidation(err))

	form.PaymentMethod = ""
	receipt, err := s.Submit(context.Background(), &cashOnly, form)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentMethodCash, receipt.Order.PaymentMethod)

	_, err = s.Submit(context.Background(), f.business, deliveryForm(9999))
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)

	soldOut, err := f.store.CreateProduct(context.Background(), f.business.ID.String(), &models.NewProduct{
		Name: "Bandeja", Price: dec("10"), IsAvailable: utils.NewFalse(),
	})
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), f.business, deliveryForm(soldOut.ID))
	assert.True(t, utils.IsValidation(err))
}

func TestSubmitKeepsOrderWhenHandoffFails(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f.store)
	unreachable := *f.business
	unreachable.Phone = "123"

	receipt, err := s.Submit(context.Background(), &unreachable, deliveryForm(f.product.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandoffUnavailable)
	require.NotNil(t, receipt)
	assert.NotZero(t, receipt.Order.ID)
	assert.Empty(t, receipt.DeepLink)

	orders, err := f.store.ListOrders(context.Background(), f.business.ID.String())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, receipt.Order.ID, orders[0].ID)
}

type failingOrderStore struct {
	OrderStore
}

func (failingOrderStore) CreateOrder(context.Context, *models.Order) (*models.Order, error) {
	return nil, errors.New("insert failed")
}

func TestSubmitStoreFailure(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(failingOrderStore{OrderStore: f.store})

	receipt, err := s.Submit(context.Background(), f.business, deliveryForm(f.product.ID))
	require.Error(t, err)
	assert.False(t, utils.IsValidation(err))
	assert.NotErrorIs(t, err, ErrHandoffUnavailable)
	assert.Nil(t, receipt)
}

func TestSubmitFallsBackToSubmitterCountryCode(t *testing.T) {
	f := newFixture(t)
	s := newTestSubmitter(f.store)
	noCode := *f.business
	noCode.CountryCode = ""

	receipt, err := s.Submit(context.Background(), &noCode, deliveryForm(f.product.ID))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(receipt.DeepLink, "https://wa.me/573001234567?text="), receipt.DeepLink)

	other := NewSubmitter(Options{Store: f.store, MessagingHost: "wa.me", CountryCode: "+52", Logger: s.logger})
	receipt, err = other.Submit(context.Background(), &noCode, deliveryForm(f.product.ID))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(receipt.DeepLink, "https://wa.me/523001234567?text="), receipt.DeepLink)
}

// Package ordering prices an order from the public menu, persists it, and hands it off to
// the business over a messaging deep link.
package ordering

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/menu_backend/config"
	"bitbucket.org/mmdatafocus/menu_backend/models"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrHandoffUnavailable means the order was stored but no deep link could be built for it.
var ErrHandoffUnavailable = errors.New("order saved but the business cannot be contacted")

// OrderStore is the part of models.Store the submitter needs.
type OrderStore interface {
	GetProduct(ctx context.Context, businessId string, productId int) (*models.Product, error)
	GetTable(ctx context.Context, businessId string, tableId int) (*models.Table, error)
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
}

type Receipt struct {
	Order    *models.Order `json:"order"`
	Quote    Quote         `json:"quote"`
	Lines    []QuoteLine   `json:"lines"`
	Message  string        `json:"message"`
	DeepLink string        `json:"deep_link,omitempty"`
}

type Options struct {
	Store         OrderStore
	MessagingHost string
	// CountryCode is used when the business has none configured.
	CountryCode string
	Logger      *logrus.Logger
	Tracer      trace.Tracer
}

type Submitter struct {
	store       OrderStore
	host        string
	countryCode string
	logger      *logrus.Logger
	tracer      trace.Tracer
}

func NewSubmitter(opts Options) *Submitter {
	s := &Submitter{
		store:       opts.Store,
		host:        opts.MessagingHost,
		countryCode: opts.CountryCode,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
	}
	if s.host == "" {
		s.host = config.MessagingHost()
	}
	if s.countryCode == "" {
		s.countryCode = config.DefaultCountryCode()
	}
	if s.logger == nil {
		s.logger = config.GetLogger()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("menu_backend/ordering")
	}
	return s
}

// Submit validates the form, prices it, stores the order as pending and builds the deep link.
// When the business phone cannot be normalized the stored order is kept and the receipt is
// returned together with ErrHandoffUnavailable. Resubmitting creates another order.
func (s *Submitter) Submit(ctx context.Context, business *models.Business, form OrderForm) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.Submit", trace.WithAttributes(
		attribute.String("business.id", business.ID.String()),
	))
	defer span.End()

	receipt, err := s.submit(ctx, business, form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return receipt, err
}

func (s *Submitter) submit(ctx context.Context, business *models.Business, form OrderForm) (*Receipt, error) {
	if !business.IsServing() {
		return nil, utils.ErrorRecordNotFound
	}
	businessId := business.ID.String()

	mode, payment, err := form.validate(ctx, business)
	if err != nil {
		return nil, err
	}

	product, err := s.store.GetProduct(ctx, businessId, form.ProductId)
	if err != nil {
		return nil, err
	}
	if !product.Available() {
		return nil, utils.Invalid(product.Name + " is not available right now")
	}

	order := &models.Order{
		BusinessId:    businessId,
		Mode:          mode,
		Status:        models.OrderStatusPending,
		CustomerName:  form.CustomerName,
		Phone:         form.Phone,
		Notes:         form.Notes,
		PaymentMethod: payment,
		Items: models.OrderItems{{
			ProductId: product.ID,
			Name:      product.Name,
			Quantity:  form.Quantity,
			UnitPrice: product.Price,
		}},
	}
	switch mode {
	case models.FulfillmentModeDineIn:
		table, err := s.store.GetTable(ctx, businessId, *form.TableId)
		if errors.Is(err, utils.ErrorRecordNotFound) || (err == nil && !table.Active()) {
			return nil, utils.Invalid("table is not available")
		} else if err != nil {
			return nil, err
		}
		order.TableId = &table.ID
		order.TableName = table.Name
	case models.FulfillmentModeDelivery:
		order.Address = form.Address
		order.City = form.City
		order.Region = form.Region
	}

	quote := ComputeQuote(product.Price, form.Quantity, business, mode)
	order.Subtotal = quote.Subtotal
	order.Tax = quote.Tax
	order.DeliveryFee = quote.DeliveryFee
	order.Total = quote.Total

	saved, err := s.store.CreateOrder(ctx, order)
	if err != nil {
		config.LogError(s.logger, "Ordering", "Submit", "create order", businessId, err)
		return nil, err
	}

	receipt := &Receipt{
		Order:   saved,
		Quote:   quote,
		Lines:   quote.Lines(),
		Message: BuildMessage(business, saved, quote),
	}

	phone, err := utils.NormalizePhone(business.Phone, business.DialingCodeOr(s.countryCode))
	if err != nil {
		// the order stays stored; staff still see it in their list
		s.logger.WithFields(logrus.Fields{
			"module":   "Ordering",
			"funcName": "Submit",
			"order_id": saved.ID,
			"business": businessId,
		}).WithError(err).Warn("messaging handoff unavailable")
		return receipt, fmt.Errorf("%w: %v", ErrHandoffUnavailable, err)
	}
	receipt.DeepLink = DeepLink(s.host, phone, receipt.Message)
	return receipt, nil
}

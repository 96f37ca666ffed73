package models

import (
	"errors"
	"strings"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var ErrInvalidOrderStatus = errors.New("invalid order status")

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady, OrderStatusDelivered, OrderStatusCancelled:
		return st, nil
	}
	return "", ErrInvalidOrderStatus
}

// IsTerminal reports whether staff can no longer move the order.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type FulfillmentMode string

const (
	FulfillmentModeDineIn   FulfillmentMode = "dine-in"
	FulfillmentModeDelivery FulfillmentMode = "delivery"
)

func (m FulfillmentMode) IsValid() bool {
	return m == FulfillmentModeDineIn || m == FulfillmentModeDelivery
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch pm := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); pm {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer:
		return pm, nil
	}
	return "", errors.New("invalid payment method")
}

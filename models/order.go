package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrOrderClosed = errors.New("order is already delivered or cancelled")

// OrderItem is a snapshot of the product at the time of ordering, not a live reference.
type OrderItem struct {
	ProductId int             `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (item OrderItem) Amount() decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

type OrderItems []OrderItem

func (items OrderItems) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (items *OrderItems) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*items = OrderItems{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into OrderItems", value)
	}
	return json.Unmarshal(raw, items)
}

type Order struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index;not null" json:"business_id"`
	Mode          FulfillmentMode `gorm:"size:10;not null" json:"mode"`
	Status        OrderStatus     `gorm:"index;size:10;not null;default:pending" json:"status"`
	CustomerName  string          `gorm:"size:100" json:"customer_name"`
	Phone         string          `gorm:"size:30;not null" json:"phone"`
	TableId       *int            `json:"table_id"`
	TableName     string          `gorm:"size:60" json:"table_name"`
	Address       string          `gorm:"type:text" json:"address"`
	City          string          `gorm:"size:100" json:"city"`
	Region        string          `gorm:"size:100" json:"region"`
	Notes         string          `gorm:"type:text" json:"notes"`
	PaymentMethod PaymentMethod   `gorm:"size:10;not null" json:"payment_method"`
	Items         OrderItems      `gorm:"type:json" json:"items"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	Tax           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax"`
	DeliveryFee   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"delivery_fee"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *Order) GetBusinessId() string {
	return o.BusinessId
}

// transitionTo applies a staff status change. Delivered and cancelled orders are final.
func (o *Order) transitionTo(status OrderStatus) error {
	if _, err := ParseOrderStatus(string(status)); err != nil {
		return err
	}
	if o.Status.IsTerminal() && status != o.Status {
		return ErrOrderClosed
	}
	o.Status = status
	return nil
}

package reports

import (
	"bytes"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteOrders(t *testing.T) {
	orders := []*models.Order{
		{
			ID:            7,
			Mode:          models.FulfillmentModeDelivery,
			Status:        models.OrderStatusPending,
			CustomerName:  "Ana",
			Phone:         "3001234567",
			Address:       "Calle 1",
			City:          "Cali",
			Region:        "Valle",
			PaymentMethod: models.PaymentMethodCash,
			Items: models.OrderItems{
				{ProductId: 1, Name: "Arepa", Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
			},
			Subtotal:    decimal.NewFromInt(200),
			Tax:         decimal.NewFromInt(38),
			DeliveryFee: decimal.NewFromInt(50),
			Total:       decimal.NewFromInt(288),
			CreatedAt:   time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteOrders(&buf, orders))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(ordersSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, orderHeadings, rows[0])
	assert.Equal(t, "7", rows[1][0])
	assert.Equal(t, "2024-05-01 12:30", rows[1][1])
	assert.Equal(t, "Calle 1, Cali, Valle", rows[1][7])
	assert.Equal(t, "2 x Arepa", rows[1][8])
	assert.Equal(t, "288", rows[1][13])
}

func TestWriteOrdersEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOrders(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(ordersSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

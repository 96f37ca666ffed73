// Package reports renders business data as spreadsheets.
package reports

import (
	"fmt"
	"io"

	"bitbucket.org/mmdatafocus/menu_backend/models"
	"github.com/xuri/excelize/v2"
)

const (
	ordersSheet = "Orders"
	XlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

var orderHeadings = []string{
	"Order", "Created", "Status", "Mode", "Customer", "Phone", "Table", "Address",
	"Items", "Payment", "Subtotal", "Tax", "Delivery", "Total",
}

type orderRow struct {
	order *models.Order
}

func (r orderRow) GetCellValues() []interface{} {
	o := r.order
	items := ""
	for i, item := range o.Items {
		if i > 0 {
			items += "; "
		}
		items += fmt.Sprintf("%d x %s", item.Quantity, item.Name)
	}
	address := ""
	if o.Mode == models.FulfillmentModeDelivery {
		address = fmt.Sprintf("%s, %s, %s", o.Address, o.City, o.Region)
	}
	return []interface{}{
		o.ID,
		o.CreatedAt.Format("2006-01-02 15:04"),
		string(o.Status),
		string(o.Mode),
		o.CustomerName,
		o.Phone,
		o.TableName,
		address,
		items,
		string(o.PaymentMethod),
		o.Subtotal.InexactFloat64(),
		o.Tax.InexactFloat64(),
		o.DeliveryFee.InexactFloat64(),
		o.Total.InexactFloat64(),
	}
}

// WriteOrders writes one row per order to w as an xlsx workbook.
func WriteOrders(w io.Writer, orders []*models.Order) error {
	rows := make([]ExcelExporter, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, orderRow{order: o})
	}
	f, err := exportExcel(rows, ordersSheet, orderHeadings...)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func exportExcel(data []ExcelExporter, sheetName string, headings ...string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	// Add headers
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}

	// Add data
	for rowNo, d := range data {
		for col, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNo+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

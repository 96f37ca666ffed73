package ordering

import (
	"fmt"
	"net/url"
	"strings"

	"bitbucket.org/mmdatafocus/menu_backend/models"
)

// BuildMessage renders the text the customer sends to the business over the messaging channel.
func BuildMessage(business *models.Business, order *models.Order, quote Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New order #%d - %s\n", order.ID, business.Name)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "%d x %s (%s)\n", item.Quantity, item.Name, formatAmount(business.Currency, item.UnitPrice))
	}
	b.WriteString("\n")
	for _, line := range quote.Lines() {
		fmt.Fprintf(&b, "%s: %s\n", line.Label, formatAmount(business.Currency, line.Amount))
	}
	b.WriteString("\n")

	switch order.Mode {
	case models.FulfillmentModeDineIn:
		table := order.TableName
		if table == "" && order.TableId != nil {
			table = fmt.Sprintf("#%d", *order.TableId)
		}
		fmt.Fprintf(&b, "Dine-in, table %s\n", table)
	case models.FulfillmentModeDelivery:
		fmt.Fprintf(&b, "Delivery to %s, %s, %s\n", order.Address, order.City, order.Region)
	}
	if order.CustomerName != "" {
		fmt.Fprintf(&b, "Name: %s\n", order.CustomerName)
	}
	fmt.Fprintf(&b, "Phone: %s\n", order.Phone)
	fmt.Fprintf(&b, "Payment: %s\n", order.PaymentMethod)
	if order.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", order.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DeepLink builds https://<host>/<phone>?text=<message>. phone must already be normalized.
func DeepLink(host, phone, message string) string {
	text := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	return "https://" + strings.Trim(host, "/") + "/" + phone + "?text=" + text
}

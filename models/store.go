package models

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/google/uuid"
)

// Store is the persistence collaborator for businesses and their catalog, tables and orders.
// Lookups that find nothing return utils.ErrorRecordNotFound.
type Store interface {
	// ListBusinesses returns the businesses owned by ownerId, or every business when ownerId is nil.
	ListBusinesses(ctx context.Context, ownerId *string) ([]*Business, error)
	GetBusinessById(ctx context.Context, id uuid.UUID) (*Business, error)
	// GetBusinessBySlug expects an already normalized alias.
	GetBusinessBySlug(ctx context.Context, slug string) (*Business, error)
	CreateBusiness(ctx context.Context, input *NewBusiness, ownerId string) (*Business, error)
	UpdateBusiness(ctx context.Context, id uuid.UUID, input *UpdateBusiness) (*Business, error)

	ListProducts(ctx context.Context, businessId string) ([]*Product, error)
	GetProduct(ctx context.Context, businessId string, productId int) (*Product, error)
	CreateProduct(ctx context.Context, businessId string, input *NewProduct) (*Product, error)
	// CountProducts returns product counts keyed by business id; missing ids count zero.
	CountProducts(ctx context.Context, businessIds []string) (map[string]int64, error)

	ListTables(ctx context.Context, businessId string) ([]*Table, error)
	GetTable(ctx context.Context, businessId string, tableId int) (*Table, error)
	CreateTable(ctx context.Context, businessId string, input *NewTable) (*Table, error)

	ListOrders(ctx context.Context, businessId string) ([]*Order, error)
	CreateOrder(ctx context.Context, order *Order) (*Order, error)
	UpdateOrderStatus(ctx context.Context, businessId string, orderId int, status OrderStatus) (*Order, error)
}

func (input *NewTable) validate(ctx context.Context) error {
	return validateStruct(ctx, input)
}

func (input *NewTable) build(businessId string) *Table {
	return &Table{
		BusinessId: businessId,
		Name:       normalizeName(input.Name),
		IsActive:   boolOrTrue(nil),
	}
}

func validateStruct(ctx context.Context, input interface{}) error {
	if err := utils.Validator().StructCtx(ctx, input); err != nil {
		return utils.NewValidationError(err)
	}
	return nil
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"index;not null" json:"business_id"`
	Name        string          `gorm:"size:100;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Category    string          `gorm:"index;size:60" json:"category"`
	Price       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	ImageUrl    string          `json:"image_url"`
	IsAvailable *bool           `gorm:"not null;default:true" json:"is_available"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Description string          `json:"description"`
	Category    string          `json:"category" validate:"max=60"`
	Price       decimal.Decimal `json:"price"`
	ImageUrl    string          `json:"image_url" validate:"omitempty,url"`
	IsAvailable *bool           `json:"is_available"`
}

func (p *Product) GetBusinessId() string {
	return p.BusinessId
}

func (p *Product) Available() bool {
	return utils.DereferencePtr(p.IsAvailable, true)
}

func (input *NewProduct) validate(ctx context.Context) error {
	if err := utils.Validator().StructCtx(ctx, input); err != nil {
		return utils.NewValidationError(err)
	}
	if input.Price.IsNegative() {
		return utils.Invalid("price must not be negative")
	}
	return nil
}

func (input *NewProduct) build(businessId string) *Product {
	return &Product{
		BusinessId:  businessId,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Category:    strings.TrimSpace(input.Category),
		Price:       input.Price,
		ImageUrl:    input.ImageUrl,
		IsAvailable: boolOrTrue(input.IsAvailable),
	}
}

type Table struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:60;not null" json:"name"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTable struct {
	Name string `json:"name" validate:"required,max=60"`
}

func (t *Table) GetBusinessId() string {
	return t.BusinessId
}

func (t *Table) Active() bool {
	return utils.DereferencePtr(t.IsActive, true)
}

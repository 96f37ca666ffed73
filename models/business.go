package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/config"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrSlugTaken = errors.New("slug is already taken by another business")

type Business struct {
	ID              uuid.UUID        `gorm:"type:char(36);primary_key" json:"id"`
	OwnerId         string           `gorm:"index;size:128;not null" json:"owner_id"`
	Name            string           `gorm:"index;size:100;not null" json:"name"`
	Slug            *string          `gorm:"size:60;uniqueIndex" json:"slug"`
	About           string           `gorm:"type:text" json:"about"`
	LogoUrl         string           `json:"logo_url"`
	Phone           string           `gorm:"size:30" json:"phone"`
	CountryCode     string           `gorm:"size:4" json:"country_code"`
	Address         string           `gorm:"type:text" json:"address"`
	City            string           `gorm:"size:100" json:"city"`
	Currency        string           `gorm:"size:3;default:COP" json:"currency"`
	TaxRatePercent  *decimal.Decimal `gorm:"type:decimal(7,4);default:null" json:"tax_rate_percent"`
	DeliveryFee     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"delivery_fee"`
	DeliveryEnabled *bool            `gorm:"not null;default:true" json:"delivery_enabled"`
	DineInEnabled   *bool            `gorm:"not null;default:true" json:"dine_in_enabled"`
	PaymentMethods  string           `gorm:"size:100" json:"payment_methods"`
	IsActive        *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name            string           `json:"name" validate:"required,max=100"`
	Slug            string           `json:"slug" validate:"omitempty,max=60"`
	About           string           `json:"about"`
	LogoUrl         string           `json:"logo_url" validate:"omitempty,url"`
	Phone           string           `json:"phone" validate:"required"`
	CountryCode     string           `json:"country_code" validate:"omitempty,numeric,max=4"`
	Address         string           `json:"address"`
	City            string           `json:"city"`
	Currency        string           `json:"currency" validate:"omitempty,len=3"`
	TaxRatePercent  *decimal.Decimal `json:"tax_rate_percent"`
	DeliveryFee     decimal.Decimal  `json:"delivery_fee"`
	DeliveryEnabled *bool            `json:"delivery_enabled"`
	DineInEnabled   *bool            `json:"dine_in_enabled"`
	PaymentMethods  []string         `json:"payment_methods"`
}

// UpdateBusiness is a partial update; nil fields are left untouched.
// An empty Slug clears the alias.
type UpdateBusiness struct {
	Name            *string          `json:"name" validate:"omitempty,max=100"`
	Slug            *string          `json:"slug" validate:"omitempty,max=60"`
	About           *string          `json:"about"`
	LogoUrl         *string          `json:"logo_url" validate:"omitempty,url"`
	Phone           *string          `json:"phone"`
	CountryCode     *string          `json:"country_code" validate:"omitempty,numeric,max=4"`
	Address         *string          `json:"address"`
	City            *string          `json:"city"`
	Currency        *string          `json:"currency" validate:"omitempty,len=3"`
	TaxRatePercent  *decimal.Decimal `json:"tax_rate_percent"`
	DeliveryFee     *decimal.Decimal `json:"delivery_fee"`
	DeliveryEnabled *bool            `json:"delivery_enabled"`
	DineInEnabled   *bool            `json:"dine_in_enabled"`
	PaymentMethods  []string         `json:"payment_methods"`
	IsActive        *bool            `json:"is_active"`
}

/*
caches:
	Business:$id
	BusinessSlug:$slug
*/

func BusinessCacheKey(id uuid.UUID) string {
	return "Business:" + id.String()
}

func BusinessSlugCacheKey(slug string) string {
	return "BusinessSlug:" + slug
}

func (business *Business) RemoveRedis() error {
	keys := []string{BusinessCacheKey(business.ID)}
	if business.Slug != nil && *business.Slug != "" {
		keys = append(keys, BusinessSlugCacheKey(*business.Slug))
	}
	return config.RemoveRedisKey(keys...)
}

// TaxRate defaults to zero when the business never configured one.
func (business *Business) TaxRate() decimal.Decimal {
	if business.TaxRatePercent == nil {
		return decimal.Zero
	}
	return *business.TaxRatePercent
}

func (business *Business) DialingCode() string {
	return business.DialingCodeOr(config.DefaultCountryCode())
}

// DialingCodeOr returns the business's own dialing code, or fallback when it has none.
func (business *Business) DialingCodeOr(fallback string) string {
	if cc := utils.DigitsOnly(business.CountryCode); cc != "" {
		return cc
	}
	return utils.DigitsOnly(fallback)
}

func (business *Business) Accepts(mode FulfillmentMode) bool {
	switch mode {
	case FulfillmentModeDineIn:
		return utils.DereferencePtr(business.DineInEnabled, true)
	case FulfillmentModeDelivery:
		return utils.DereferencePtr(business.DeliveryEnabled, true)
	}
	return false
}

// AcceptedPaymentMethods lists the configured methods in order; an unconfigured business takes cash only.
func (business *Business) AcceptedPaymentMethods() []PaymentMethod {
	var methods []PaymentMethod
	for _, raw := range utils.SplitAndTrim(business.PaymentMethods) {
		if pm, err := ParsePaymentMethod(raw); err == nil {
			methods = append(methods, pm)
		}
	}
	methods = utils.UniqueSlice(methods)
	if len(methods) == 0 {
		return []PaymentMethod{PaymentMethodCash}
	}
	return methods
}

func (business *Business) IsServing() bool {
	return utils.DereferencePtr(business.IsActive, true)
}

func boolOrTrue(b *bool) *bool {
	if b == nil {
		return utils.NewTrue()
	}
	v := *b
	return &v
}

func joinPaymentMethods(raw []string) (string, error) {
	var out []string
	for _, r := range raw {
		pm, err := ParsePaymentMethod(r)
		if err != nil {
			return "", utils.NewValidationError(err)
		}
		out = append(out, string(pm))
	}
	return strings.Join(utils.UniqueSlice(out), ","), nil
}

func normalizeSlugInput(raw string) (*string, error) {
	slug := utils.NormalizeSlug(raw)
	if slug == "" {
		return nil, nil
	}
	if !utils.IsValidSlug(slug) {
		return nil, utils.Invalid("slug may only contain lowercase letters, digits and single hyphens")
	}
	return &slug, nil
}

func validateTaxAndFee(rate *decimal.Decimal, fee *decimal.Decimal) error {
	if rate != nil && (rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100))) {
		return utils.Invalid("tax rate must be between 0 and 100")
	}
	if fee != nil && fee.IsNegative() {
		return utils.Invalid("delivery fee must not be negative")
	}
	return nil
}

func (input *NewBusiness) validate(ctx context.Context) error {
	if err := utils.Validator().StructCtx(ctx, input); err != nil {
		return utils.NewValidationError(err)
	}
	cc := input.CountryCode
	if cc == "" {
		cc = config.DefaultCountryCode()
	}
	if err := utils.ValidatePhoneNumber(input.Phone, cc); err != nil {
		return utils.Invalid("invalid phone: " + err.Error())
	}
	if err := validateTaxAndFee(input.TaxRatePercent, &input.DeliveryFee); err != nil {
		return err
	}
	return nil
}

// build turns a validated payload into a new Business owned by ownerId.
func (input *NewBusiness) build(ownerId string) (*Business, error) {
	slug, err := normalizeSlugInput(input.Slug)
	if err != nil {
		return nil, err
	}
	methods, err := joinPaymentMethods(input.PaymentMethods)
	if err != nil {
		return nil, err
	}
	cc := utils.DigitsOnly(input.CountryCode)
	if cc == "" {
		cc = config.DefaultCountryCode()
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "COP"
	}
	return &Business{
		ID:              uuid.New(),
		OwnerId:         ownerId,
		Name:            strings.TrimSpace(input.Name),
		Slug:            slug,
		About:           input.About,
		LogoUrl:         input.LogoUrl,
		Phone:           strings.TrimSpace(input.Phone),
		CountryCode:     cc,
		Address:         input.Address,
		City:            input.City,
		Currency:        currency,
		TaxRatePercent:  input.TaxRatePercent,
		DeliveryFee:     input.DeliveryFee,
		DeliveryEnabled: boolOrTrue(input.DeliveryEnabled),
		DineInEnabled:   boolOrTrue(input.DineInEnabled),
		PaymentMethods:  methods,
		IsActive:        utils.NewTrue(),
	}, nil
}

func (input *UpdateBusiness) validate(ctx context.Context, current *Business) error {
	if err := utils.Validator().StructCtx(ctx, input); err != nil {
		return utils.NewValidationError(err)
	}
	if input.Phone != nil {
		cc := current.DialingCode()
		if input.CountryCode != nil && *input.CountryCode != "" {
			cc = *input.CountryCode
		}
		if err := utils.ValidatePhoneNumber(*input.Phone, cc); err != nil {
			return utils.Invalid("invalid phone: " + err.Error())
		}
	}
	return validateTaxAndFee(input.TaxRatePercent, input.DeliveryFee)
}

// apply mutates a copy of current; the returned slug flag reports whether the alias changes.
func (input *UpdateBusiness) apply(current Business) (*Business, bool, error) {
	slugChanged := false
	if input.Slug != nil {
		slug, err := normalizeSlugInput(*input.Slug)
		if err != nil {
			return nil, false, err
		}
		slugChanged = utils.DereferencePtr(slug) != utils.DereferencePtr(current.Slug)
		current.Slug = slug
	}
	if input.Name != nil {
		current.Name = strings.TrimSpace(*input.Name)
	}
	if input.About != nil {
		current.About = *input.About
	}
	if input.LogoUrl != nil {
		current.LogoUrl = *input.LogoUrl
	}
	if input.Phone != nil {
		current.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.CountryCode != nil {
		current.CountryCode = utils.DigitsOnly(*input.CountryCode)
	}
	if input.Address != nil {
		current.Address = *input.Address
	}
	if input.City != nil {
		current.City = *input.City
	}
	if input.Currency != nil {
		current.Currency = strings.ToUpper(strings.TrimSpace(*input.Currency))
	}
	if input.TaxRatePercent != nil {
		current.TaxRatePercent = input.TaxRatePercent
	}
	if input.DeliveryFee != nil {
		current.DeliveryFee = *input.DeliveryFee
	}
	if input.DeliveryEnabled != nil {
		current.DeliveryEnabled = input.DeliveryEnabled
	}
	if input.DineInEnabled != nil {
		current.DineInEnabled = input.DineInEnabled
	}
	if input.PaymentMethods != nil {
		methods, err := joinPaymentMethods(input.PaymentMethods)
		if err != nil {
			return nil, false, err
		}
		current.PaymentMethods = methods
	}
	if input.IsActive != nil {
		current.IsActive = input.IsActive
	}
	return &current, slugChanged, nil
}

package session

import (
	"bitbucket.org/mmdatafocus/menu_backend/models"
)

type View string

const (
	ViewLoading       View = "loading"
	ViewLanding       View = "landing"
	ViewRegister      View = "register"
	ViewSuperAdmin    View = "superadmin"
	ViewBusinessAdmin View = "businessadmin"
	ViewPublicMenu    View = "publicmenu"
)

type Role string

const (
	RoleAnonymous   Role = "anonymous"
	RoleTenantAdmin Role = "tenantAdmin"
	RoleSuperAdmin  Role = "superAdmin"
)

// Session is replaced as a whole on every reconciliation; never modify one in place.
type Session struct {
	Role      Role    `json:"role"`
	TenantId  *string `json:"tenant_id,omitempty"`
	AccountId string  `json:"account_id,omitempty"`
	Email     string  `json:"email,omitempty"`
}

func anonymous() Session {
	return Session{Role: RoleAnonymous}
}

func (s Session) tenant() string {
	if s.TenantId == nil {
		return ""
	}
	return *s.TenantId
}

// Equal compares role, tenant and account.
func (s Session) Equal(o Session) bool {
	return s.Role == o.Role && s.tenant() == o.tenant() && s.AccountId == o.AccountId
}

type PublicMenu struct {
	Identifier string                 `json:"identifier"`
	Loading    bool                   `json:"loading"`
	NotFound   bool                   `json:"not_found"`
	TimedOut   bool                   `json:"timed_out"`
	Error      string                 `json:"error,omitempty"`
	Business   *models.Business       `json:"business,omitempty"`
	Products   []*models.Product      `json:"products"`
	Tables     []*models.Table        `json:"tables"`
	Payments   []models.PaymentMethod `json:"payment_methods"`
}

// State is a snapshot handed to subscribers. Slices inside it are never mutated after
// publication, so a snapshot can be read without locking.
type State struct {
	Version    uint64             `json:"version"`
	View       View               `json:"view"`
	Loading    bool               `json:"loading"`
	Session    Session            `json:"session"`
	Businesses []*models.Business `json:"businesses"`
	Products   []*models.Product  `json:"products"`
	Orders     []*models.Order    `json:"orders"`
	PublicMenu *PublicMenu        `json:"public_menu,omitempty"`
}

// clearTenantData drops every cached business, product and order.
func (s *State) clearTenantData() {
	s.Businesses = nil
	s.Products = nil
	s.Orders = nil
}

package models

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It backs STORE_DRIVER=memory and the tests.
// Returned records are copies; mutating them does not change the store.
type MemoryStore struct {
	mu         sync.RWMutex
	businesses map[uuid.UUID]*Business
	slugs      map[string]uuid.UUID
	products   map[int]*Product
	tables     map[int]*Table
	orders     map[int]*Order
	nextId     int
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[uuid.UUID]*Business),
		slugs:      make(map[string]uuid.UUID),
		products:   make(map[int]*Product),
		tables:     make(map[int]*Table),
		orders:     make(map[int]*Order),
		now:        time.Now,
	}
}

func (s *MemoryStore) id() int {
	s.nextId++
	return s.nextId
}

func copyBusiness(b *Business) *Business {
	c := *b
	return &c
}

func (s *MemoryStore) ListBusinesses(ctx context.Context, ownerId *string) ([]*Business, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*Business
	for _, b := range s.businesses {
		if ownerId != nil && b.OwnerId != *ownerId {
			continue
		}
		results = append(results, copyBusiness(b))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Name == results[j].Name {
			return results[i].ID.String() < results[j].ID.String()
		}
		return results[i].Name < results[j].Name
	})
	return results, nil
}

func (s *MemoryStore) GetBusinessById(ctx context.Context, id uuid.UUID) (*Business, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	return copyBusiness(b), nil
}

func (s *MemoryStore) GetBusinessBySlug(ctx context.Context, slug string) (*Business, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slug = utils.NormalizeSlug(slug)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.slugs[slug]
	if !ok || slug == "" {
		return nil, utils.ErrorRecordNotFound
	}
	return copyBusiness(s.businesses[id]), nil
}

func (s *MemoryStore) CreateBusiness(ctx context.Context, input *NewBusiness, ownerId string) (*Business, error) {
	if ownerId == "" {
		return nil, errors.New("owner id is required")
	}
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	business, err := input.build(ownerId)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if business.Slug != nil {
		if _, taken := s.slugs[*business.Slug]; taken {
			return nil, ErrSlugTaken
		}
		s.slugs[*business.Slug] = business.ID
	}
	business.CreatedAt = s.now()
	business.UpdatedAt = business.CreatedAt
	s.businesses[business.ID] = business
	return copyBusiness(business), nil
}

// PutBusiness stores a fully built record as-is, keeping the alias index consistent.
// Used by seeding and tests that need fixed ids.
func (s *MemoryStore) PutBusiness(business *Business) error {
	b := copyBusiness(business)
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Slug != nil {
		slug := utils.NormalizeSlug(*b.Slug)
		b.Slug = utils.NilIfEmpty(slug)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Slug != nil {
		if holder, taken := s.slugs[*b.Slug]; taken && holder != b.ID {
			return ErrSlugTaken
		}
	}
	if old, ok := s.businesses[b.ID]; ok && old.Slug != nil {
		delete(s.slugs, *old.Slug)
	}
	if b.Slug != nil {
		s.slugs[*b.Slug] = b.ID
	}
	s.businesses[b.ID] = b
	business.ID = b.ID
	return nil
}

func (s *MemoryStore) UpdateBusiness(ctx context.Context, id uuid.UUID, input *UpdateBusiness) (*Business, error) {
	current, err := s.GetBusinessById(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, current); err != nil {
		return nil, err
	}
	updated, slugChanged, err := input.apply(*current)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.businesses[id]
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}
	if slugChanged {
		if updated.Slug != nil {
			if holder, taken := s.slugs[*updated.Slug]; taken && holder != id {
				return nil, ErrSlugTaken
			}
		}
		if stored.Slug != nil {
			delete(s.slugs, *stored.Slug)
		}
		if updated.Slug != nil {
			s.slugs[*updated.Slug] = id
		}
	}
	updated.UpdatedAt = s.now()
	s.businesses[id] = updated
	return copyBusiness(updated), nil
}

func (s *MemoryStore) ListProducts(ctx context.Context, businessId string) ([]*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*Product
	for _, p := range s.products {
		if p.BusinessId == businessId {
			c := *p
			results = append(results, &c)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Category != results[j].Category {
			return results[i].Category < results[j].Category
		}
		if results[i].Name != results[j].Name {
			return results[i].Name < results[j].Name
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, businessId string, productId int) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productId]
	if !ok || p.BusinessId != businessId {
		return nil, utils.ErrorRecordNotFound
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) CreateProduct(ctx context.Context, businessId string, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	product := input.build(businessId)
	s.mu.Lock()
	defer s.mu.Unlock()
	product.ID = s.id()
	product.CreatedAt = s.now()
	product.UpdatedAt = product.CreatedAt
	s.products[product.ID] = product
	c := *product
	return &c, nil
}

func (s *MemoryStore) CountProducts(ctx context.Context, businessIds []string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(businessIds))
	for _, id := range businessIds {
		wanted[id] = true
	}
	counts := make(map[string]int64, len(businessIds))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if wanted[p.BusinessId] {
			counts[p.BusinessId]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) ListTables(ctx context.Context, businessId string) ([]*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*Table
	for _, t := range s.tables {
		if t.BusinessId == businessId {
			c := *t
			results = append(results, &c)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Name != results[j].Name {
			return strings.Compare(results[i].Name, results[j].Name) < 0
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

func (s *MemoryStore) GetTable(ctx context.Context, businessId string, tableId int) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableId]
	if !ok || t.BusinessId != businessId {
		return nil, utils.ErrorRecordNotFound
	}
	c := *t
	return &c, nil
}

func (s *MemoryStore) CreateTable(ctx context.Context, businessId string, input *NewTable) (*Table, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	table := input.build(businessId)
	s.mu.Lock()
	defer s.mu.Unlock()
	table.ID = s.id()
	table.CreatedAt = s.now()
	table.UpdatedAt = table.CreatedAt
	s.tables[table.ID] = table
	c := *table
	return &c, nil
}

func copyOrder(o *Order) *Order {
	c := *o
	c.Items = append(OrderItems(nil), o.Items...)
	return &c
}

func (s *MemoryStore) ListOrders(ctx context.Context, businessId string) ([]*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*Order
	for _, o := range s.orders {
		if o.BusinessId == businessId {
			results = append(results, copyOrder(o))
		}
	}
	// newest first
	sort.Slice(results, func(i, j int) bool { return results[i].ID > results[j].ID })
	return results, nil
}

func (s *MemoryStore) CreateOrder(ctx context.Context, order *Order) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if order.BusinessId == "" {
		return nil, errors.New("business id is required")
	}
	stored := copyOrder(order)
	if stored.Status == "" {
		stored.Status = OrderStatusPending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored.ID = s.id()
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.orders[stored.ID] = stored
	return copyOrder(stored), nil
}

func (s *MemoryStore) UpdateOrderStatus(ctx context.Context, businessId string, orderId int, status OrderStatus) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderId]
	if !ok || o.BusinessId != businessId {
		return nil, utils.ErrorRecordNotFound
	}
	next := copyOrder(o)
	if err := next.transitionTo(status); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	s.orders[orderId] = next
	return copyOrder(next), nil
}

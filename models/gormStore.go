package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/config"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/bsm/redislock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const slugLockTTL = 10 * time.Second

// GormStore persists records in MySQL through gorm.
type GormStore struct {
	db     *gorm.DB
	locker *redislock.Client
}

// NewGormStore uses the given connection; a nil locker skips the alias claim lock.
func NewGormStore(db *gorm.DB, locker *redislock.Client) *GormStore {
	return &GormStore{db: db, locker: locker}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	return err
}

func (s *GormStore) ListBusinesses(ctx context.Context, ownerId *string) ([]*Business, error) {
	var results []*Business
	dbCtx := s.db.WithContext(ctx)
	if ownerId != nil {
		dbCtx = dbCtx.Where("owner_id = ?", *ownerId)
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *GormStore) GetBusinessById(ctx context.Context, id uuid.UUID) (*Business, error) {
	var result Business
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&result).Error; err != nil {
		return nil, notFound(err)
	}
	return &result, nil
}

func (s *GormStore) GetBusinessBySlug(ctx context.Context, slug string) (*Business, error) {
	slug = utils.NormalizeSlug(slug)
	if slug == "" {
		return nil, utils.ErrorRecordNotFound
	}
	var result Business
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&result).Error; err != nil {
		return nil, notFound(err)
	}
	return &result, nil
}

// claimSlug holds a short redis lock on the alias so two registrations racing for it
// are serialized before the unique index has to reject one of them.
func (s *GormStore) claimSlug(ctx context.Context, slug string) (func(), error) {
	release := func() {}
	if s.locker == nil {
		return release, nil
	}
	lock, err := s.locker.Obtain(ctx, "lock:slug:"+slug, slugLockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return release, fmt.Errorf("%w: alias is being claimed", ErrSlugTaken)
	} else if err != nil {
		// best effort, the unique index still guards the alias
		config.GetLogger().WithField("slug", slug).WithError(err).Warn("could not obtain slug lock")
		return release, nil
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}

func (s *GormStore) CreateBusiness(ctx context.Context, input *NewBusiness, ownerId string) (*Business, error) {
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

	if business.Slug != nil {
		release, err := s.claimSlug(ctx, *business.Slug)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if business.Slug != nil {
			if err := utils.ValidateUnique[Business](ctx, tx, "slug", *business.Slug, nil); err != nil {
				return slugConflict(err)
			}
		}
		return slugConflict(tx.Create(business).Error)
	})
	if err != nil {
		return nil, err
	}
	return business, nil
}

func (s *GormStore) UpdateBusiness(ctx context.Context, id uuid.UUID, input *UpdateBusiness) (*Business, error) {
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

	if slugChanged && updated.Slug != nil {
		release, err := s.claimSlug(ctx, *updated.Slug)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if slugChanged && updated.Slug != nil {
			if err := utils.ValidateUnique[Business](ctx, tx, "slug", *updated.Slug, id.String()); err != nil {
				return slugConflict(err)
			}
		}
		// Select("*") so cleared fields (nil slug, false flags) are written too
		return slugConflict(tx.Model(updated).Select("*").Omit("CreatedAt").Updates(updated).Error)
	})
	if err != nil {
		return nil, err
	}

	// cached resolver entries for the old and the new alias
	if err := current.RemoveRedis(); err != nil {
		config.LogError(nil, "Business", "UpdateBusiness", "remove redis", id.String(), err)
	}
	if err := updated.RemoveRedis(); err != nil {
		config.LogError(nil, "Business", "UpdateBusiness", "remove redis", id.String(), err)
	}
	return updated, nil
}

func slugConflict(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || err.Error() == "duplicate slug" {
		return ErrSlugTaken
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return ErrSlugTaken
	}
	return err
}

func (s *GormStore) ListProducts(ctx context.Context, businessId string) ([]*Product, error) {
	var results []*Product
	if err := s.db.WithContext(ctx).Where("business_id = ?", businessId).Order("category, name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *GormStore) GetProduct(ctx context.Context, businessId string, productId int) (*Product, error) {
	var result Product
	if err := s.db.WithContext(ctx).Where("business_id = ? AND id = ?", businessId, productId).First(&result).Error; err != nil {
		return nil, notFound(err)
	}
	return &result, nil
}

func (s *GormStore) CreateProduct(ctx context.Context, businessId string, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	product := input.build(businessId)
	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

func (s *GormStore) CountProducts(ctx context.Context, businessIds []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(businessIds))
	if len(businessIds) == 0 {
		return counts, nil
	}
	var rows []struct {
		BusinessId string
		Count      int64
	}
	// Batches span tenants; the caller's business scope must not narrow them.
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	err := s.db.WithContext(ctx).Model(&Product{}).
		Select("business_id, count(*) as count").
		Where("business_id IN ?", businessIds).
		Group("business_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.BusinessId] = r.Count
	}
	return counts, nil
}

func (s *GormStore) ListTables(ctx context.Context, businessId string) ([]*Table, error) {
	var results []*Table
	if err := s.db.WithContext(ctx).Where("business_id = ?", businessId).Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *GormStore) GetTable(ctx context.Context, businessId string, tableId int) (*Table, error) {
	var result Table
	if err := s.db.WithContext(ctx).Where("business_id = ? AND id = ?", businessId, tableId).First(&result).Error; err != nil {
		return nil, notFound(err)
	}
	return &result, nil
}

func (s *GormStore) CreateTable(ctx context.Context, businessId string, input *NewTable) (*Table, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	table := input.build(businessId)
	if err := s.db.WithContext(ctx).Create(table).Error; err != nil {
		return nil, err
	}
	return table, nil
}

func (s *GormStore) ListOrders(ctx context.Context, businessId string) ([]*Order, error) {
	var results []*Order
	if err := s.db.WithContext(ctx).Where("business_id = ?", businessId).Order("created_at DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *GormStore) CreateOrder(ctx context.Context, order *Order) (*Order, error) {
	if order.BusinessId == "" {
		return nil, errors.New("business id is required")
	}
	if order.Status == "" {
		order.Status = OrderStatusPending
	}
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (s *GormStore) UpdateOrderStatus(ctx context.Context, businessId string, orderId int, status OrderStatus) (*Order, error) {
	var order Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ? AND id = ?", businessId, orderId).First(&order).Error; err != nil {
			return notFound(err)
		}
		if err := order.transitionTo(status); err != nil {
			return err
		}
		return tx.Model(&order).Update("status", order.Status).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

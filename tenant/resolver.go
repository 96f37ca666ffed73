// Package tenant maps the identifier in a public menu URL to a business.
package tenant

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/config"
	"bitbucket.org/mmdatafocus/menu_backend/models"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// fetchTimeout bounds a shared store lookup, which no longer follows any single caller's context.
const fetchTimeout = 10 * time.Second

// BusinessReader is the part of models.Store the resolver needs.
type BusinessReader interface {
	GetBusinessById(ctx context.Context, id uuid.UUID) (*models.Business, error)
	GetBusinessBySlug(ctx context.Context, slug string) (*models.Business, error)
}

// Cache holds resolved businesses by cache key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*models.Business, bool, error)
	Set(ctx context.Context, key string, business *models.Business) error
}

type Resolver struct {
	store  BusinessReader
	cache  Cache
	logger *logrus.Logger
	sf     singleflight.Group
}

// NewResolver accepts a nil cache; a nil logger falls back to config.GetLogger().
func NewResolver(store BusinessReader, cache Cache, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Resolver{store: store, cache: cache, logger: logger}
}

// Resolve returns the business named by identifier. The alias is tried first and always wins;
// the id lookup only runs for canonical UUID-shaped input. A miss is (nil, false, nil); an
// error means the store could not be reached. Inactive businesses are not served.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*models.Business, bool, error) {
	key := utils.NormalizeSlug(identifier)
	if key == "" {
		return nil, false, nil
	}

	business, err := r.lookup(ctx, models.BusinessSlugCacheKey(key), func(ctx context.Context) (*models.Business, error) {
		return r.store.GetBusinessBySlug(ctx, key)
	})
	if err != nil {
		return nil, false, err
	}
	if business == nil && utils.IsCanonicalId(key) {
		id := uuid.MustParse(key)
		business, err = r.lookup(ctx, models.BusinessCacheKey(id), func(ctx context.Context) (*models.Business, error) {
			return r.store.GetBusinessById(ctx, id)
		})
		if err != nil {
			return nil, false, err
		}
	}
	if business == nil || !business.IsServing() {
		return nil, false, nil
	}
	return business, true, nil
}

func (r *Resolver) lookup(ctx context.Context, cacheKey string, fetch func(context.Context) (*models.Business, error)) (*models.Business, error) {
	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, cacheKey)
		if err != nil {
			r.logger.WithFields(logrus.Fields{"module": "Resolver", "key": cacheKey}).WithError(err).Warn("cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	// Concurrent lookups of the same key share one store round trip. The shared fetch is detached
	// from the caller that started it; each caller stops waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := r.sf.DoChan(cacheKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(shared, fetchTimeout)
		defer cancel()
		return fetch(fetchCtx)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	v, err := res.Val, res.Err
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		config.LogError(r.logger, "Resolver", "Resolve", "store lookup", cacheKey, err)
		return nil, err
	}
	business := v.(*models.Business)

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, business); err != nil {
			r.logger.WithFields(logrus.Fields{"module": "Resolver", "key": cacheKey}).WithError(err).Warn("cache write failed")
		}
	}
	return business, nil
}

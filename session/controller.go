// Package session decides which view a visitor sees and which session they hold, and keeps
// the secondary data for that view loading in the background.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/config"
	"bitbucket.org/mmdatafocus/menu_backend/identity"
	"bitbucket.org/mmdatafocus/menu_backend/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store is the part of models.Store the controller reads.
type Store interface {
	ListBusinesses(ctx context.Context, ownerId *string) ([]*models.Business, error)
	ListProducts(ctx context.Context, businessId string) ([]*models.Product, error)
	ListTables(ctx context.Context, businessId string) ([]*models.Table, error)
	ListOrders(ctx context.Context, businessId string) ([]*models.Order, error)
}

type Resolver interface {
	Resolve(ctx context.Context, identifier string) (*models.Business, bool, error)
}

const (
	phaseIdle int32 = iota
	phaseReconciling
)

type Options struct {
	Store    Store
	Resolver Resolver
	Identity identity.Provider
	Location Location
	// SuperAdminId is matched exactly against the identity's account id. Empty disables the role.
	SuperAdminId string
	// Param is the query parameter naming the public menu tenant; defaults to config.PublicMenuParam().
	Param             string
	PublicMenuTimeout time.Duration
	Logger            *logrus.Logger
	Tracer            trace.Tracer
}

type Controller struct {
	store         Store
	resolver      Resolver
	identity      identity.Provider
	location      Location
	superAdminId  string
	param         string
	publicTimeout time.Duration
	logger        *logrus.Logger
	tracer        trace.Tracer

	phase atomic.Int32

	mu          sync.Mutex
	state       State
	tenantGen   uint64
	publicGen   uint64
	publicTimer *time.Timer
	subs        map[int]func(State)
	nextSub     int

	notifyMu  sync.Mutex
	delivered uint64

	ctx         context.Context
	cancel      context.CancelFunc
	bg          sync.WaitGroup
	unsubscribe func()
}

func New(opts Options) *Controller {
	c := &Controller{
		store:         opts.Store,
		resolver:      opts.Resolver,
		identity:      opts.Identity,
		location:      opts.Location,
		superAdminId:  opts.SuperAdminId,
		param:         opts.Param,
		publicTimeout: opts.PublicMenuTimeout,
		logger:        opts.Logger,
		tracer:        opts.Tracer,
		subs:          make(map[int]func(State)),
		state: State{
			View:    ViewLoading,
			Loading: true,
			Session: anonymous(),
		},
	}
	if c.param == "" {
		c.param = config.PublicMenuParam()
	}
	if c.publicTimeout <= 0 {
		c.publicTimeout = config.PublicMenuTimeout
	}
	if c.logger == nil {
		c.logger = config.GetLogger()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("menu_backend/session")
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Start subscribes to identity events and runs the mount reconciliation.
func (c *Controller) Start(ctx context.Context) {
	unsubscribe := c.identity.Subscribe(c.handleEvent)
	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	c.Reconcile(ctx)
}

// Stop drops the identity subscription and cancels background loads.
func (c *Controller) Stop() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.stopPublicTimerLocked()
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	c.cancel()
}

// Wait blocks until dispatched events and background loads have finished.
func (c *Controller) Wait() {
	c.bg.Wait()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change. fn runs on the goroutine that made the
// change and must not call back into the controller synchronously.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) handleEvent(ev identity.Event) {
	switch ev.Type {
	case identity.EventSignedIn, identity.EventTokenRefreshed:
		c.bg.Add(1)
		go func() {
			defer c.bg.Done()
			c.Reconcile(c.ctx)
		}()
	case identity.EventSignedOut:
		c.signedOut()
	}
}

// Reconcile runs one decision pass. The public menu parameter wins over everything else.
// Otherwise a pass already in flight makes this call return false without touching state.
func (c *Controller) Reconcile(ctx context.Context) bool {
	if identifier, ok := c.location.Query(c.param); ok {
		c.showPublicMenu(identifier)
		return true
	}
	if !c.phase.CompareAndSwap(phaseIdle, phaseReconciling) {
		c.logger.WithField("module", "Session").Debug("reconciliation in flight, trigger dropped")
		return false
	}

	ctx, span := c.tracer.Start(ctx, "session.Reconcile")
	c.mu.Lock()
	gen := c.tenantGen
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("reconcile panic: %v", r)
			config.LogError(c.logger, "Session", "Reconcile", "recovered", nil, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.mutate(func(s *State) { s.Loading = false })
		c.phase.Store(phaseIdle)
		span.End()
	}()

	c.mutate(func(s *State) { s.Loading = true })
	if err := c.pass(ctx, gen); err != nil {
		// could not determine the role: keep whatever view the visitor had
		config.LogError(c.logger, "Session", "Reconcile", "resolve role", nil, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return true
}

func (c *Controller) pass(ctx context.Context, gen uint64) error {
	id, err := c.identity.CurrentIdentity(ctx)
	if err != nil {
		return err
	}
	if id == nil {
		c.commit(gen, func(s *State) {
			s.Session = anonymous()
			s.View = ViewLanding
			s.clearTenantData()
		})
		return nil
	}

	isSuperAdmin := c.superAdminId != "" && id.AccountId == c.superAdminId
	var owner *string
	if !isSuperAdmin {
		owner = &id.AccountId
	}
	businesses, err := c.store.ListBusinesses(ctx, owner)
	if err != nil {
		return err
	}

	next := Session{AccountId: id.AccountId, Email: id.Email}
	var view View
	switch {
	case isSuperAdmin:
		next.Role = RoleSuperAdmin
		view = ViewSuperAdmin
	case len(businesses) > 0:
		tenantId := businesses[0].ID.String()
		next.Role = RoleTenantAdmin
		next.TenantId = &tenantId
		view = ViewBusinessAdmin
	default:
		next.Role = RoleTenantAdmin
		view = ViewRegister
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("session.role", string(next.Role)),
		attribute.String("session.view", string(view)),
	)

	loadGen, ok := c.commit(gen, func(s *State) {
		if !s.Session.Equal(next) {
			s.Products = nil
			s.Orders = nil
		}
		s.Session = next
		s.View = view
		s.Businesses = businesses
	})
	if !ok {
		c.logger.WithField("module", "Session").Debug("stale reconciliation discarded")
		return nil
	}
	if next.TenantId != nil {
		c.loadTenantData(loadGen, *next.TenantId)
	}
	return nil
}

// commit applies fn only if no sign-out or newer pass happened since gen was read, and opens
// a new generation for the background loads that follow.
func (c *Controller) commit(gen uint64, fn func(*State)) (uint64, bool) {
	c.mu.Lock()
	if c.tenantGen != gen {
		c.mu.Unlock()
		return 0, false
	}
	c.tenantGen++
	next := c.tenantGen
	fn(&c.state)
	c.state.Version++
	c.mu.Unlock()
	c.publish()
	return next, true
}

func (c *Controller) mutate(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	c.state.Version++
	c.mu.Unlock()
	c.publish()
}

// loadTenantData fetches products and orders without blocking the view. Results are dropped
// when the session moved on before they arrived; failures are only logged.
func (c *Controller) loadTenantData(gen uint64, tenantId string) {
	c.bg.Add(2)
	go func() {
		defer c.bg.Done()
		products, err := c.store.ListProducts(c.ctx, tenantId)
		if err != nil {
			c.warnLoad("products", tenantId, err)
			return
		}
		c.applyTenant(gen, tenantId, func(s *State) { s.Products = products })
	}()
	go func() {
		defer c.bg.Done()
		orders, err := c.store.ListOrders(c.ctx, tenantId)
		if err != nil {
			c.warnLoad("orders", tenantId, err)
			return
		}
		c.applyTenant(gen, tenantId, func(s *State) { s.Orders = orders })
	}()
}

func (c *Controller) applyTenant(gen uint64, tenantId string, fn func(*State)) {
	c.mu.Lock()
	if c.tenantGen != gen || c.state.Session.tenant() != tenantId {
		c.mu.Unlock()
		c.logger.WithFields(logrus.Fields{"module": "Session", "tenant": tenantId}).Debug("stale background load discarded")
		return
	}
	fn(&c.state)
	c.state.Version++
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) warnLoad(what, tenantId string, err error) {
	c.logger.WithFields(logrus.Fields{
		"module":   "Session",
		"funcName": "loadTenantData",
		"data":     what,
		"tenant":   tenantId,
	}).WithError(err).Warn("background load failed")
}

func (c *Controller) signedOut() {
	_, public := c.location.Query(c.param)
	c.mu.Lock()
	c.tenantGen++
	c.state.Session = anonymous()
	c.state.clearTenantData()
	c.state.Loading = false
	if public {
		c.state.View = ViewPublicMenu
	} else {
		c.publicGen++
		c.stopPublicTimerLocked()
		c.state.View = ViewLanding
		c.state.PublicMenu = nil
	}
	c.state.Version++
	c.mu.Unlock()
	c.publish()
}

// Logout revokes the identity session, forgets every cached record, strips the public menu
// parameter from the address and lands the visitor on the landing view.
func (c *Controller) Logout(ctx context.Context) error {
	c.location.StripParam(c.param)
	err := c.identity.SignOut(ctx)
	if err != nil {
		config.LogError(c.logger, "Session", "Logout", "identity sign out", nil, err)
	}
	c.mu.Lock()
	c.tenantGen++
	c.publicGen++
	c.stopPublicTimerLocked()
	c.state.Session = anonymous()
	c.state.clearTenantData()
	c.state.PublicMenu = nil
	c.state.View = ViewLanding
	c.state.Loading = false
	c.state.Version++
	c.mu.Unlock()
	c.publish()
	return err
}

func (c *Controller) publish() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	snapshot := c.state
	fns := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	if snapshot.Version <= c.delivered {
		return
	}
	c.delivered = snapshot.Version
	for _, fn := range fns {
		fn(snapshot)
	}
}

package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/identity"
	"bitbucket.org/mmdatafocus/menu_backend/models"
	"bitbucket.org/mmdatafocus/menu_backend/tenant"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const superAdmin = "root-account"

// gatedStore wraps the memory store so tests can hold or fail individual calls.
type gatedStore struct {
	*models.MemoryStore

	mu                sync.Mutex
	businessesEntered chan struct{}
	businessesGate    chan struct{}
	productGates      map[string]chan struct{}
	businessesErr     error
	productsErr       error
}

func newGatedStore() *gatedStore {
	return &gatedStore{MemoryStore: models.NewMemoryStore(), productGates: map[string]chan struct{}{}}
}

func (s *gatedStore) ListBusinesses(ctx context.Context, ownerId *string) ([]*models.Business, error) {
	s.mu.Lock()
	entered, gate, err := s.businessesEntered, s.businessesGate, s.businessesErr
	s.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.ListBusinesses(ctx, ownerId)
}

func (s *gatedStore) ListProducts(ctx context.Context, businessId string) ([]*models.Product, error) {
	s.mu.Lock()
	gate, err := s.productGates[businessId], s.productsErr
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.ListProducts(ctx, businessId)
}

func (s *gatedStore) set(fn func(*gatedStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

type failingIdentity struct {
	identity.Static
}

func (failingIdentity) CurrentIdentity(context.Context) (*identity.Identity, error) {
	return nil, errors.New("identity provider unreachable")
}

type blockingResolver struct {
	gate chan struct{}
}

func (r blockingResolver) Resolve(context.Context, string) (*models.Business, bool, error) {
	<-r.gate
	return nil, false, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type world struct {
	store *gatedStore
	hub   *identity.Hub
	casa  *models.Business
	other *models.Business
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	store := newGatedStore()
	casaSlug := "casa"
	casa := &models.Business{Name: "Casa", OwnerId: "owner-1", Slug: &casaSlug, Phone: "3001234567"}
	require.NoError(t, store.PutBusiness(casa))
	other := &models.Business{Name: "Other", OwnerId: "owner-2"}
	require.NoError(t, store.PutBusiness(other))

	for _, b := range []*models.Business{casa, other} {
		_, err := store.CreateProduct(ctx, b.ID.String(), &models.NewProduct{Name: b.Name + " special", Price: decimal.NewFromInt(10)})
		require.NoError(t, err)
	}
	_, err := store.CreateProduct(ctx, casa.ID.String(), &models.NewProduct{Name: "Sold out", Price: decimal.NewFromInt(5), IsAvailable: utils.NewFalse()})
	require.NoError(t, err)
	_, err = store.CreateTable(ctx, casa.ID.String(), &models.NewTable{Name: "T1"})
	require.NoError(t, err)
	_, err = store.CreateOrder(ctx, &models.Order{BusinessId: casa.ID.String(), Mode: models.FulfillmentModeDineIn, Phone: "1"})
	require.NoError(t, err)

	return &world{store: store, hub: identity.NewHub(), casa: casa, other: other}
}

func (w *world) controller(t *testing.T, rawURL string, opts ...func(*Options)) (*Controller, *URLLocation) {
	t.Helper()
	loc, err := NewURLLocation(rawURL)
	require.NoError(t, err)
	o := Options{
		Store:        w.store,
		Resolver:     tenant.NewResolver(w.store, nil, quietLogger()),
		Identity:     w.hub,
		Location:     loc,
		SuperAdminId: superAdmin,
		Param:        "menu",
		Logger:       quietLogger(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	c := New(o)
	t.Cleanup(func() {
		c.Stop()
		c.Wait()
	})
	return c, loc
}

func TestAnonymousMountLandsOnLanding(t *testing.T) {
	w := newWorld(t)
	c, _ := w.controller(t, "https://menu.test/")

	assert.Equal(t, ViewLoading, c.State().View)
	assert.True(t, c.State().Loading)

	c.Start(context.Background())
	st := c.State()
	assert.Equal(t, ViewLanding, st.View)
	assert.False(t, st.Loading)
	assert.Equal(t, RoleAnonymous, st.Session.Role)
}

func TestRoleSelection(t *testing.T) {
	w := newWorld(t)
	tests := []struct {
		name      string
		accountId string
		view      View
		role      Role
		tenant    string
		loads     bool
	}{
		{"owner with a business", "owner-1", ViewBusinessAdmin, RoleTenantAdmin, w.casa.ID.String(), true},
		{"owner without a business", "owner-9", ViewRegister, RoleTenantAdmin, "", false},
		{"super admin", superAdmin, ViewSuperAdmin, RoleSuperAdmin, "", false},
		{"super admin id is case sensitive", "ROOT-ACCOUNT", ViewRegister, RoleTenantAdmin, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w.hub.SignIn(identity.Identity{AccountId: tt.accountId, Email: tt.accountId + "@example.com"})
			c, _ := w.controller(t, "https://menu.test/dashboard")
			require.True(t, c.Reconcile(context.Background()))
			c.Wait()

			st := c.State()
			assert.Equal(t, tt.view, st.View)
			assert.Equal(t, tt.role, st.Session.Role)
			assert.Equal(t, tt.tenant, st.Session.tenant())
			assert.False(t, st.Loading)
			if tt.loads {
				assert.Len(t, st.Products, 2)
				assert.Len(t, st.Orders, 1)
			} else {
				assert.Nil(t, st.Products)
				assert.Nil(t, st.Orders)
			}
		})
	}

	w.hub.SignIn(identity.Identity{AccountId: superAdmin})
	c, _ := w.controller(t, "https://menu.test/")
	c.Reconcile(context.Background())
	assert.Len(t, c.State().Businesses, 2, "super admin sees every business")
}

func TestPublicParamTakesPrecedence(t *testing.T) {
	identities := []*identity.Identity{
		nil,
		{AccountId: "owner-1"},
		{AccountId: "owner-9"},
		{AccountId: superAdmin},
	}
	for _, id := range identities {
		w := newWorld(t)
		if id != nil {
			w.hub.SignIn(*id)
		}
		c, _ := w.controller(t, "https://menu.test/?menu=CASA")
		c.Start(context.Background())

		st := c.State()
		assert.Equal(t, ViewPublicMenu, st.View)
		assert.False(t, st.Loading)
		require.NotNil(t, st.PublicMenu)

		c.Wait()
		pm := c.State().PublicMenu
		require.NotNil(t, pm.Business)
		assert.Equal(t, w.casa.ID, pm.Business.ID)
		assert.False(t, pm.Loading)
		require.Len(t, pm.Products, 1, "only available products are shown")
		assert.Equal(t, "Casa special", pm.Products[0].Name)
		assert.Len(t, pm.Tables, 1)
		assert.Equal(t, []models.PaymentMethod{models.PaymentMethodCash}, pm.Payments)
	}
}

func TestSuperAdminVisitingPublicMenuSeesThatTenant(t *testing.T) {
	w := newWorld(t)
	otherSlug := "other-place"
	w.other.Slug = &otherSlug
	require.NoError(t, w.store.PutBusiness(w.other))

	w.hub.SignIn(identity.Identity{AccountId: superAdmin})
	c, _ := w.controller(t, "https://menu.test/?menu=other-place")
	c.Start(context.Background())

	// later identity events must not pull the visitor into the admin panel
	w.hub.Refresh()
	c.Wait()

	st := c.State()
	assert.Equal(t, ViewPublicMenu, st.View)
	require.NotNil(t, st.PublicMenu.Business)
	assert.Equal(t, w.other.ID, st.PublicMenu.Business.ID)
}

func TestPublicMenuNotFound(t *testing.T) {
	w := newWorld(t)
	c, _ := w.controller(t, "https://menu.test/?menu=nowhere")
	c.Reconcile(context.Background())
	c.Wait()

	pm := c.State().PublicMenu
	require.NotNil(t, pm)
	assert.True(t, pm.NotFound)
	assert.False(t, pm.Loading)
	assert.Equal(t, ViewPublicMenu, c.State().View)
}

func TestConcurrentTriggerIsDropped(t *testing.T) {
	w := newWorld(t)
	w.hub.SignIn(identity.Identity{AccountId: "owner-1"})
	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	w.store.set(func(s *gatedStore) {
		s.businessesEntered = entered
		s.businessesGate = gate
	})
	c, _ := w.controller(t, "https://menu.test/")

	var mu sync.Mutex
	var sessions []Session
	c.Subscribe(func(st State) {
		mu.Lock()
		sessions = append(sessions, st.Session)
		mu.Unlock()
	})

	first := make(chan bool)
	go func() { first <- c.Reconcile(context.Background()) }()
	<-entered

	for i := 0; i < 5; i++ {
		assert.False(t, c.Reconcile(context.Background()), "second pass must be dropped while one is in flight")
	}

	w.store.set(func(s *gatedStore) { s.businessesEntered = nil })
	close(gate)
	assert.True(t, <-first)
	assert.True(t, c.Reconcile(context.Background()), "guard is released after the pass")
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	var distinct []Session
	for _, s := range sessions {
		if s.Role == RoleAnonymous {
			continue
		}
		if len(distinct) == 0 || !distinct[len(distinct)-1].Equal(s) {
			distinct = append(distinct, s)
		}
	}
	assert.Len(t, distinct, 1)
}

func TestViewRendersBeforeBackgroundLoads(t *testing.T) {
	w := newWorld(t)
	w.hub.SignIn(identity.Identity{AccountId: "owner-1"})
	gate := make(chan struct{})
	w.store.set(func(s *gatedStore) { s.productGates[w.casa.ID.String()] = gate })
	c, _ := w.controller(t, "https://menu.test/")

	c.Reconcile(context.Background())
	st := c.State()
	assert.Equal(t, ViewBusinessAdmin, st.View)
	assert.False(t, st.Loading)
	assert.Nil(t, st.Products)

	close(gate)
	c.Wait()
	assert.Len(t, c.State().Products, 2)
}

func TestStaleBackgroundLoadIsDiscarded(t *testing.T) {
	w := newWorld(t)
	gate := make(chan struct{})
	w.store.set(func(s *gatedStore) { s.productGates[w.casa.ID.String()] = gate })
	c, _ := w.controller(t, "https://menu.test/")

	w.hub.SignIn(identity.Identity{AccountId: "owner-1"})
	c.Reconcile(context.Background())
	w.hub.SignIn(identity.Identity{AccountId: "owner-2"})
	c.Reconcile(context.Background())

	close(gate)
	c.Wait()

	st := c.State()
	assert.Equal(t, w.other.ID.String(), st.Session.tenant())
	require.Len(t, st.Products, 1)
	assert.Equal(t, "Other special", st.Products[0].Name)
}

func TestRoleResolutionFailureKeepsView(t *testing.T) {
	w := newWorld(t)
	w.hub.SignIn(identity.Identity{AccountId: "owner-1"})
	c, _ := w.controller(t, "https://menu.test/")
	c.Reconcile(context.Background())
	before := c.State()
	require.Equal(t, ViewBusinessAdmin, before.View)

	w.store.set(func(s *gatedStore) { s.businessesErr = errors.New("db down") })
	assert.True(t, c.Reconcile(context.Background()))

	after := c.State()
	assert.Equal(t, ViewBusinessAdmin, after.View)
	assert.True(t, before.Session.Equal(after.Session))
	assert.False(t, after.Loading)

	c2, _ := w.controller(t, "https://menu.test/", func(o *Options) { o.Identity = failingIdentity{} })
	c2.Reconcile(context.Background())
	assert.Equal(t, ViewLoading, c2.State().View)
	assert.False(t, c2.State().Loading)
}

func TestBackgroundLoadFailureIsSwallowed(t *testing.T) {
	w := newWorld(t)
	w.hub.SignIn(identity.Identity{AccountId: "owner-1"})
	w.store.set(func(s *gatedStore) { s.productsErr = errors.New("timeout") })
	c, _ := w.controller(t, "https://menu.test/")

	c.Reconcile(context.Background())
	c.Wait()
	st := c.State()
	assert.Equal(t, ViewBusinessAdmin, st.View)
	assert.Nil(t, st.Products)
	assert.Len(t, st.Orders, 1)
}

func TestIdentityEvents(t *testing.T) {
	w := newWorld(t)
	c, _ := w.controller(t, "https://menu.test/")
	c.Start(context.Background())
	require.Equal(t, ViewLanding, c.State().View)

	w.hub.SignIn(identity.Identity{AccountId: "owner-1"})
	c.Wait()
	assert.Equal(t, ViewBusinessAdmin, c.State().View)

	require.NoError(t, w.hub.SignOut(context.Background()))
	st := c.State()
	assert.Equal(t, ViewLanding, st.View)
	assert.Equal(t, RoleAnonymous, st.Session.Role)
	assert.Nil(t, st.Businesses)
	assert.Nil(t, st.Products)

	c.Stop()
	w.hub.SignIn(identity.Identity{AccountId: "owner-1"})
	c.Wait()
	assert.Equal(t, ViewLanding, c.State().View, "no events after Stop")
}

func TestSignedOutKeepsPublicMenu(t *testing.T) {
	w := newWorld(t)
	w.hub.SignIn(identity.Identity{AccountId: "owner-1"})
	c, _ := w.controller(t, "https://menu.test/?menu=casa")
	c.Start(context.Background())
	c.Wait()

	require.NoError(t, w.hub.SignOut(context.Background()))
	st := c.State()
	assert.Equal(t, ViewPublicMenu, st.View)
	require.NotNil(t, st.PublicMenu)
	assert.Equal(t, w.casa.ID, st.PublicMenu.Business.ID)
}

func TestLogout(t *testing.T) {
	w := newWorld(t)
	w.hub.SignIn(identity.Identity{AccountId: superAdmin})
	c, loc := w.controller(t, "https://menu.test/?menu=casa&lang=es")
	c.Start(context.Background())
	c.Wait()
	require.Equal(t, ViewPublicMenu, c.State().View)

	require.NoError(t, c.Logout(context.Background()))
	st := c.State()
	assert.Equal(t, ViewLanding, st.View)
	assert.Equal(t, RoleAnonymous, st.Session.Role)
	assert.Nil(t, st.PublicMenu)
	assert.Nil(t, st.Businesses)
	assert.Equal(t, "https://menu.test/?lang=es", loc.String())

	current, err := w.hub.CurrentIdentity(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)

	c.Reconcile(context.Background())
	assert.Equal(t, ViewLanding, c.State().View)
}

func TestPublicMenuSafetyTimeout(t *testing.T) {
	w := newWorld(t)
	gate := make(chan struct{})
	c, _ := w.controller(t, "https://menu.test/?menu=casa", func(o *Options) {
		o.Resolver = blockingResolver{gate: gate}
		o.PublicMenuTimeout = 20 * time.Millisecond
	})

	c.Reconcile(context.Background())
	require.True(t, c.State().PublicMenu.Loading)

	require.Eventually(t, func() bool {
		pm := c.State().PublicMenu
		return !pm.Loading && pm.TimedOut
	}, time.Second, 5*time.Millisecond)

	close(gate)
	c.Wait()
	assert.True(t, c.State().PublicMenu.NotFound)
}

func TestSubscribe(t *testing.T) {
	w := newWorld(t)
	w.hub.SignIn(identity.Identity{AccountId: "owner-1"})
	c, _ := w.controller(t, "https://menu.test/")

	var mu sync.Mutex
	var versions []uint64
	unsubscribe := c.Subscribe(func(st State) {
		mu.Lock()
		versions = append(versions, st.Version)
		mu.Unlock()
	})
	c.Reconcile(context.Background())
	c.Wait()
	unsubscribe()

	mu.Lock()
	seen := len(versions)
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
	mu.Unlock()
	assert.NotZero(t, seen)

	c.Reconcile(context.Background())
	c.Wait()
	mu.Lock()
	assert.Equal(t, seen, len(versions))
	mu.Unlock()
}

func TestURLLocation(t *testing.T) {
	loc, err := NewURLLocation("https://menu.test/?menu=")
	require.NoError(t, err)
	v, ok := loc.Query("menu")
	assert.True(t, ok, "presence is by key, even with an empty value")
	assert.Equal(t, "", v)

	_, ok = loc.Query("other")
	assert.False(t, ok)

	loc.StripParam("menu")
	_, ok = loc.Query("menu")
	assert.False(t, ok)
}

package session

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/config"
	"bitbucket.org/mmdatafocus/menu_backend/models"
)

// showPublicMenu switches to the public view at once and loads the tenant in the background.
// A menu already shown or loading for the same identifier is left alone; one that failed or
// timed out is loaded again. A not-found result is final.
func (c *Controller) showPublicMenu(identifier string) {
	c.mu.Lock()
	if pm := c.state.PublicMenu; pm != nil && pm.Identifier == identifier && c.state.View == ViewPublicMenu &&
		pm.Error == "" && !pm.TimedOut {
		changed := c.state.Loading
		c.state.Loading = false
		if changed {
			c.state.Version++
		}
		c.mu.Unlock()
		c.publish()
		return
	}
	c.publicGen++
	gen := c.publicGen
	c.stopPublicTimerLocked()
	c.state.View = ViewPublicMenu
	c.state.Loading = false
	c.state.PublicMenu = &PublicMenu{Identifier: identifier, Loading: true}
	c.state.Version++
	c.publicTimer = time.AfterFunc(c.publicTimeout, func() { c.expirePublicMenu(gen) })
	c.mu.Unlock()
	c.publish()

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.loadPublicMenu(gen, identifier)
	}()
}

func (c *Controller) loadPublicMenu(gen uint64, identifier string) {
	ctx, cancel := context.WithTimeout(c.ctx, c.publicTimeout)
	defer cancel()

	fail := func(step string, err error) {
		config.LogError(c.logger, "Session", "loadPublicMenu", step, identifier, err)
		c.applyPublic(gen, func(pm *PublicMenu) {
			pm.Loading = false
			pm.Error = "the menu could not be loaded"
		})
	}

	business, ok, err := c.resolver.Resolve(ctx, identifier)
	if err != nil {
		fail("resolve", err)
		return
	}
	if !ok {
		c.applyPublic(gen, func(pm *PublicMenu) {
			pm.Loading = false
			pm.NotFound = true
		})
		return
	}

	businessId := business.ID.String()
	products, err := c.store.ListProducts(ctx, businessId)
	if err != nil {
		fail("list products", err)
		return
	}
	tables, err := c.store.ListTables(ctx, businessId)
	if err != nil {
		fail("list tables", err)
		return
	}

	available := make([]*models.Product, 0, len(products))
	for _, p := range products {
		if p.Available() {
			available = append(available, p)
		}
	}
	active := make([]*models.Table, 0, len(tables))
	for _, t := range tables {
		if t.Active() {
			active = append(active, t)
		}
	}
	c.applyPublic(gen, func(pm *PublicMenu) {
		pm.Loading = false
		pm.TimedOut = false
		pm.Business = business
		pm.Products = available
		pm.Tables = active
		pm.Payments = business.AcceptedPaymentMethods()
	})
}

// expirePublicMenu clears the loading indicator once the safety timeout passes.
func (c *Controller) expirePublicMenu(gen uint64) {
	c.applyPublic(gen, func(pm *PublicMenu) {
		if pm.Loading {
			pm.Loading = false
			pm.TimedOut = true
		}
	})
}

func (c *Controller) applyPublic(gen uint64, fn func(*PublicMenu)) {
	c.mu.Lock()
	if c.publicGen != gen || c.state.PublicMenu == nil {
		c.mu.Unlock()
		return
	}
	next := *c.state.PublicMenu
	fn(&next)
	if !next.Loading {
		c.stopPublicTimerLocked()
	}
	c.state.PublicMenu = &next
	c.state.Version++
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) stopPublicTimerLocked() {
	if c.publicTimer != nil {
		c.publicTimer.Stop()
		c.publicTimer = nil
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/menu_backend/config"
	"bitbucket.org/mmdatafocus/menu_backend/identity"
	"bitbucket.org/mmdatafocus/menu_backend/middlewares"
	"bitbucket.org/mmdatafocus/menu_backend/models"
	"bitbucket.org/mmdatafocus/menu_backend/ordering"
	"bitbucket.org/mmdatafocus/menu_backend/reports"
	"bitbucket.org/mmdatafocus/menu_backend/session"
	"bitbucket.org/mmdatafocus/menu_backend/tenant"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type api struct {
	store     models.Store
	resolver  *tenant.Resolver
	submitter *ordering.Submitter

	superAdminId string
	param        string
	// viewWait bounds how long /api/view waits for background loads before answering.
	viewWait time.Duration
	logger   *logrus.Logger
	tracer   trace.Tracer
}

// CountProducts lets the dataloader middleware batch onto whichever store is installed.
func (a *api) CountProducts(ctx context.Context, businessIds []string) (map[string]int64, error) {
	return a.store.CountProducts(ctx, businessIds)
}

func (a *api) respondError(c *gin.Context, funcName string, err error) {
	switch {
	case utils.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": utils.ProcessValidationErrors(err)})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrSlugTaken), errors.Is(err, models.ErrOrderClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidOrderStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request timed out"})
	default:
		var data any
		if cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
			data = map[string]string{"correlation_id": cid}
		}
		config.LogError(a.logger, "Server", funcName, c.FullPath(), data, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// view runs one reconciliation pass for the caller and returns the resulting state once the
// background loads settle or viewWait passes.
func (a *api) view(c *gin.Context) {
	ctx := c.Request.Context()
	location, err := session.NewURLLocation(c.Request.URL.String())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
		return
	}

	ctrl := session.New(session.Options{
		Store:        a.store,
		Resolver:     a.resolver,
		Identity:     identity.Static{Identity: middlewares.CtxIdentity(ctx)},
		Location:     location,
		SuperAdminId: a.superAdminId,
		Param:        a.param,
		Logger:       a.logger,
		Tracer:       a.tracer,
	})
	defer ctrl.Stop()
	ctrl.Reconcile(ctx)

	done := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.viewWait):
	case <-ctx.Done():
	}
	c.JSON(http.StatusOK, ctrl.State())
}

func (a *api) resolve(c *gin.Context) (*models.Business, bool) {
	business, ok, err := a.resolver.Resolve(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		a.respondError(c, "resolve", err)
		return nil, false
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "business not found"})
		return nil, false
	}
	return business, true
}

func (a *api) publicMenu(c *gin.Context) {
	business, ok := a.resolve(c)
	if !ok {
		return
	}
	businessId := business.ID.String()

	var products []*models.Product
	var tables []*models.Table
	group, ctx := errgroup.WithContext(c.Request.Context())
	group.Go(func() (err error) {
		products, err = a.store.ListProducts(ctx, businessId)
		return err
	})
	group.Go(func() (err error) {
		tables, err = a.store.ListTables(ctx, businessId)
		return err
	})
	if err := group.Wait(); err != nil {
		a.respondError(c, "publicMenu", err)
		return
	}

	menu := session.PublicMenu{
		Identifier: c.Param("identifier"),
		Business:   business,
		Products:   make([]*models.Product, 0, len(products)),
		Tables:     make([]*models.Table, 0, len(tables)),
		Payments:   business.AcceptedPaymentMethods(),
	}
	for _, p := range products {
		if p.Available() {
			menu.Products = append(menu.Products, p)
		}
	}
	for _, t := range tables {
		if t.Active() {
			menu.Tables = append(menu.Tables, t)
		}
	}
	c.JSON(http.StatusOK, menu)
}

func (a *api) submitOrder(c *gin.Context) {
	business, ok := a.resolve(c)
	if !ok {
		return
	}
	var form ordering.OrderForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	receipt, err := a.submitter.Submit(c.Request.Context(), business, form)
	if errors.Is(err, ordering.ErrHandoffUnavailable) && receipt != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    err.Error(),
			"order_id": receipt.Order.ID,
			"order":    receipt.Order,
			"quote":    receipt.Quote,
			"lines":    receipt.Lines,
			"message":  receipt.Message,
		})
		return
	}
	if err != nil {
		a.respondError(c, "submitOrder", err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// ownedBusiness loads :id and checks the caller may manage it.
func (a *api) ownedBusiness(c *gin.Context) (*models.Business, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	ctx := c.Request.Context()
	business, err := a.store.GetBusinessById(ctx, id)
	if err != nil {
		a.respondError(c, "ownedBusiness", err)
		return nil, false
	}
	caller := middlewares.CtxIdentity(ctx)
	if !middlewares.CtxIsSuperAdmin(ctx) && (caller == nil || caller.AccountId != business.OwnerId) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	// scope the rest of the request to this tenant
	c.Request = c.Request.WithContext(utils.SetBusinessIdInContext(ctx, business.ID.String()))
	return business, true
}

func (a *api) listBusinesses(c *gin.Context) {
	ctx := c.Request.Context()
	var owner *string
	if !middlewares.CtxIsSuperAdmin(ctx) {
		owner = &middlewares.CtxIdentity(ctx).AccountId
	}
	businesses, err := a.store.ListBusinesses(ctx, owner)
	if err != nil {
		a.respondError(c, "listBusinesses", err)
		return
	}
	c.JSON(http.StatusOK, businesses)
}

func (a *api) createBusiness(c *gin.Context) {
	var input models.NewBusiness
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx := c.Request.Context()
	business, err := a.store.CreateBusiness(ctx, &input, middlewares.CtxIdentity(ctx).AccountId)
	if err != nil {
		a.respondError(c, "createBusiness", err)
		return
	}
	c.JSON(http.StatusCreated, business)
}

func (a *api) updateBusiness(c *gin.Context) {
	business, ok := a.ownedBusiness(c)
	if !ok {
		return
	}
	var input models.UpdateBusiness
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx := c.Request.Context()
	// suspending a business is a platform decision
	if input.IsActive != nil && !middlewares.CtxIsSuperAdmin(ctx) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the platform administrator can change is_active"})
		return
	}
	updated, err := a.store.UpdateBusiness(ctx, business.ID, &input)
	if err != nil {
		a.respondError(c, "updateBusiness", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *api) listProducts(c *gin.Context) {
	business, ok := a.ownedBusiness(c)
	if !ok {
		return
	}
	products, err := a.store.ListProducts(c.Request.Context(), business.ID.String())
	if err != nil {
		a.respondError(c, "listProducts", err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (a *api) createProduct(c *gin.Context) {
	business, ok := a.ownedBusiness(c)
	if !ok {
		return
	}
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	product, err := a.store.CreateProduct(c.Request.Context(), business.ID.String(), &input)
	if err != nil {
		a.respondError(c, "createProduct", err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (a *api) listTables(c *gin.Context) {
	business, ok := a.ownedBusiness(c)
	if !ok {
		return
	}
	tables, err := a.store.ListTables(c.Request.Context(), business.ID.String())
	if err != nil {
		a.respondError(c, "listTables", err)
		return
	}
	c.JSON(http.StatusOK, tables)
}

func (a *api) createTable(c *gin.Context) {
	business, ok := a.ownedBusiness(c)
	if !ok {
		return
	}
	var input models.NewTable
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	table, err := a.store.CreateTable(c.Request.Context(), business.ID.String(), &input)
	if err != nil {
		a.respondError(c, "createTable", err)
		return
	}
	c.JSON(http.StatusCreated, table)
}

func (a *api) listOrders(c *gin.Context) {
	business, ok := a.ownedBusiness(c)
	if !ok {
		return
	}
	orders, err := a.store.ListOrders(c.Request.Context(), business.ID.String())
	if err != nil {
		a.respondError(c, "listOrders", err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (a *api) exportOrders(c *gin.Context) {
	business, ok := a.ownedBusiness(c)
	if !ok {
		return
	}
	orders, err := a.store.ListOrders(c.Request.Context(), business.ID.String())
	if err != nil {
		a.respondError(c, "exportOrders", err)
		return
	}

	name := business.ID.String()
	if business.Slug != nil {
		name = *business.Slug
	}
	c.Header("Content-Type", reports.XlsxContentType)
	c.Header("Content-Disposition", "attachment; filename=orders-"+name+".xlsx")
	c.Status(http.StatusOK)
	if err := reports.WriteOrders(c.Writer, orders); err != nil {
		config.LogError(a.logger, "Server", "exportOrders", "write xlsx", name, err)
		_ = c.Error(err)
	}
}

type orderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (a *api) updateOrderStatus(c *gin.Context) {
	business, ok := a.ownedBusiness(c)
	if !ok {
		return
	}
	orderId, err := strconv.Atoi(c.Param("orderId"))
	if err != nil || orderId <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		a.respondError(c, "updateOrderStatus", err)
		return
	}
	order, err := a.store.UpdateOrderStatus(c.Request.Context(), business.ID.String(), orderId, status)
	if err != nil {
		a.respondError(c, "updateOrderStatus", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type adminBusiness struct {
	*models.Business
	ProductCount int64 `json:"product_count"`
}

func (a *api) adminBusinesses(c *gin.Context) {
	ctx := c.Request.Context()
	if !middlewares.CtxIsSuperAdmin(ctx) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	businesses, err := a.store.ListBusinesses(ctx, nil)
	if err != nil {
		a.respondError(c, "adminBusinesses", err)
		return
	}

	if len(businesses) == 0 {
		c.JSON(http.StatusOK, []adminBusiness{})
		return
	}
	ids := make([]string, len(businesses))
	for i, b := range businesses {
		ids[i] = b.ID.String()
	}
	counts, errs := middlewares.GetProductCounts(ctx, ids)
	out := make([]adminBusiness, len(businesses))
	for i, b := range businesses {
		if len(errs) > i && errs[i] != nil {
			a.respondError(c, "adminBusinesses", errs[i])
			return
		}
		out[i] = adminBusiness{Business: b, ProductCount: counts[i]}
	}
	c.JSON(http.StatusOK, out)
}

// seed-dev creates a demo business with two tables and three products so the public menu
// can be tried locally. Running it again with the same slug changes nothing.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev -owner <account id>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/menu_backend/config"
	"bitbucket.org/mmdatafocus/menu_backend/models"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/shopspring/decimal"
)

type seedProduct struct {
	name     string
	category string
	price    int64
}

var demoProducts = []seedProduct{
	{"Arepa de queso", "Arepas", 8000},
	{"Empanada", "Fritos", 3500},
	{"Limonada de coco", "Bebidas", 9000},
}

func main() {
	owner := flag.String("owner", "", "identity account id that owns the business (required)")
	name := flag.String("name", "Demo Restaurant", "business name")
	slug := flag.String("slug", "demo", "public menu alias")
	phone := flag.String("phone", "300 123 4567", "business messaging phone")
	flag.Parse()

	if *owner == "" || utils.NormalizeSlug(*slug) == "" {
		fmt.Fprintln(os.Stderr, "-owner and -slug are required")
		os.Exit(2)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if !config.SkipMigrations() {
		models.MigrateTable()
	}
	store := models.NewGormStore(db, nil)

	existing, err := store.GetBusinessBySlug(ctx, utils.NormalizeSlug(*slug))
	if err == nil {
		fmt.Printf("Business %q already exists (id=%s); nothing to do\n", *existing.Slug, existing.ID)
		return
	}
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		fmt.Fprintf(os.Stderr, "failed to lookup business: %v\n", err)
		os.Exit(1)
	}

	business, err := store.CreateBusiness(ctx, &models.NewBusiness{
		Name:           *name,
		Slug:           *slug,
		Phone:          *phone,
		CountryCode:    config.DefaultCountryCode(),
		DeliveryFee:    decimal.NewFromInt(5000),
		PaymentMethods: []string{string(models.PaymentMethodCash), string(models.PaymentMethodTransfer)},
	}, *owner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create business: %v\n", err)
		os.Exit(1)
	}
	businessId := business.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	for _, table := range []string{"Mesa 1", "Mesa 2"} {
		if _, err := store.CreateTable(ctx, businessId, &models.NewTable{Name: table}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create table %q: %v\n", table, err)
			os.Exit(1)
		}
	}
	for _, p := range demoProducts {
		if _, err := store.CreateProduct(ctx, businessId, &models.NewProduct{
			Name:     p.name,
			Category: p.category,
			Price:    decimal.NewFromInt(p.price),
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create product %q: %v\n", p.name, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Created business %q (id=%s) with %d tables and %d products; open /public/menu/%s\n",
		*name, businessId, 2, len(demoProducts), *business.Slug)
}

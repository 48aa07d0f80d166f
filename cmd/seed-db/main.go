// Command seed-db loads a small demo dataset: a product catalog, a handful of
// customers, and a few paid orders committed through the regular line commit
// path so totals and frozen prices are consistent.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/sales-ledger/internal/domain/catalog"
	"github.com/xenking/sales-ledger/internal/domain/customer"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var seedProducts = []catalog.Product{
	{ID: "espresso-machine", Name: "Espresso Machine", Category: "appliances", Cost: price("180.00"), Price: price("299.00"), Stock: 25, Active: true},
	{ID: "grinder-pro", Name: "Burr Grinder Pro", Category: "appliances", Cost: price("55.00"), Price: price("129.00"), Stock: 40, Active: true},
	{ID: "arabica-1kg", Name: "Arabica Beans 1kg", Category: "coffee", Cost: price("9.50"), Price: price("24.00"), Stock: 200, Active: true},
	{ID: "robusta-1kg", Name: "Robusta Beans 1kg", Category: "coffee", Cost: price("6.00"), Price: price("16.00"), Stock: 150, Active: true},
	{ID: "ceramic-mug", Name: "Ceramic Mug", Category: "accessories", Cost: price("2.20"), Price: price("9.00"), Stock: 300, Active: true},
	{ID: "legacy-filter", Name: "Legacy Paper Filters", Category: "accessories", Cost: price("1.00"), Price: price("4.00"), Stock: 80, Active: false},
}

var seedCustomers = []customer.Customer{
	{ID: "cust-ada", Name: "Ada Bergström", Email: "ada@example.com", Segment: customer.SegmentNew},
	{ID: "cust-bo", Name: "Bo Lindqvist", Email: "bo@example.com", Segment: customer.SegmentNew},
	{ID: "cust-cleo", Name: "Cleo Martins", Email: "cleo@example.com", Segment: customer.SegmentNew},
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductStore(pool)
	customers := postgres.NewCustomerStore(pool)
	orders := postgres.NewOrderStore(pool)

	written, err := products.Upsert(ctx, seedProducts)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	slog.Info("products seeded", slog.Int64("count", written))

	for i := range seedCustomers {
		if err := customers.Create(ctx, &seedCustomers[i]); err != nil {
			return errors.Wrapf(err, "seed customer %s", seedCustomers[i].ID)
		}
	}
	slog.Info("customers seeded", slog.Int("count", len(seedCustomers)))

	// A couple of paid orders so the analytics surfaces have data on a fresh
	// install.
	demo := []struct {
		customerID string
		lines      []order.CommitParams
	}{
		{customerID: "cust-ada", lines: []order.CommitParams{
			{ProductID: "espresso-machine", Quantity: 1},
			{ProductID: "arabica-1kg", Quantity: 2},
		}},
		{customerID: "cust-bo", lines: []order.CommitParams{
			{ProductID: "ceramic-mug", Quantity: 4},
		}},
	}

	svc := order.NewService(orders, customers)
	for _, d := range demo {
		o, err := svc.Open(ctx, d.customerID)
		if err != nil {
			return errors.Wrapf(err, "open order for %s", d.customerID)
		}
		for _, line := range d.lines {
			line.OrderID = o.ID
			if _, err := svc.CommitLine(ctx, line); err != nil {
				return errors.Wrapf(err, "commit line for %s", d.customerID)
			}
		}
		if err := svc.MarkPaid(ctx, o.ID); err != nil {
			return errors.Wrapf(err, "mark order %s paid", o.ID)
		}
	}
	slog.Info("demo orders seeded", slog.Int("count", len(demo)))

	return nil
}

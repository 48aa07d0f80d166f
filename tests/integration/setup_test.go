//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/sales-ledger/internal/domain/catalog"
	"github.com/xenking/sales-ledger/internal/domain/customer"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/storage/postgres"
)

// setupTestDB starts a throwaway PostgreSQL container, applies the embedded
// schema, and returns a connected pool. Cleanup is registered on t.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "ledger",
			"POSTGRES_PASSWORD": "ledger",
			"POSTGRES_DB":       "ledger",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://ledger:ledger@%s:%s/ledger?sslmode=disable", host, port.Port())

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err, "create pool")
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.RunMigrations(ctx, pool), "run migrations")

	return pool
}

// --- Data helpers ---

func mustDecimal(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func createProduct(t *testing.T, pool *pgxpool.Pool, id string, cost, price string, stock int, active bool) {
	t.Helper()
	createProductInCategory(t, pool, id, "test", cost, price, stock, active)
}

func createProductInCategory(t *testing.T, pool *pgxpool.Pool, id, category, cost, price string, stock int, active bool) {
	t.Helper()
	store := postgres.NewProductStore(pool)
	_, err := store.Upsert(context.Background(), []catalog.Product{{
		ID:       id,
		Name:     "Product " + id,
		Category: category,
		Cost:     mustDecimal(cost),
		Price:    mustDecimal(price),
		Stock:    stock,
		Active:   active,
	}})
	require.NoError(t, err, "create product %s", id)
}

func createCustomer(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	store := postgres.NewCustomerStore(pool)
	err := store.Create(context.Background(), &customer.Customer{
		ID:      id,
		Name:    "Customer " + id,
		Email:   id + "@example.com",
		Segment: customer.SegmentNew,
	})
	require.NoError(t, err, "create customer %s", id)
}

func openOrder(t *testing.T, pool *pgxpool.Pool, customerID string) *order.Order {
	t.Helper()
	svc := order.NewService(postgres.NewOrderStore(pool), postgres.NewCustomerStore(pool))
	o, err := svc.Open(context.Background(), customerID)
	require.NoError(t, err, "open order for %s", customerID)
	return o
}

// backdateOrder moves an order's created_at, so recency and period grouping
// can be exercised without waiting.
func backdateOrder(t *testing.T, pool *pgxpool.Pool, orderID string, createdAt time.Time) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`UPDATE orders SET created_at = $2 WHERE id = $1`, orderID, createdAt)
	require.NoError(t, err, "backdate order %s", orderID)
}

func productStock(t *testing.T, pool *pgxpool.Pool, id string) int {
	t.Helper()
	var stock int
	err := pool.QueryRow(context.Background(),
		`SELECT stock FROM products WHERE id = $1`, id).Scan(&stock)
	require.NoError(t, err)
	return stock
}

func lineCount(t *testing.T, pool *pgxpool.Pool, orderID string) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM order_lines WHERE order_id = $1`, orderID).Scan(&n)
	require.NoError(t, err)
	return n
}

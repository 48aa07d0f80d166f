//go:build integration

package integration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/sales-ledger/internal/domain/catalog"
	"github.com/xenking/sales-ledger/internal/domain/order"
	"github.com/xenking/sales-ledger/internal/storage/postgres"
)

func TestCommitLine_FreezesPriceAndCost(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	createProduct(t, pool, "p1", "6.00", "10.00", 50, true)
	createCustomer(t, pool, "c1")
	o := openOrder(t, pool, "c1")

	store := postgres.NewOrderStore(pool)
	line, err := store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "p1", Quantity: 3})
	require.NoError(t, err)

	assert.True(t, mustDecimal("10.00").Equal(line.UnitPrice))
	assert.True(t, mustDecimal("6.00").Equal(line.UnitCost))
	assert.True(t, mustDecimal("30.00").Equal(line.Subtotal))
	assert.True(t, mustDecimal("12.00").Equal(line.Margin))

	// Reprice the catalog, then verify the committed line is untouched.
	createProduct(t, pool, "p1", "9.00", "15.00", 50, true)

	var unitPrice, unitCost string
	err = pool.QueryRow(ctx,
		`SELECT unit_price::text, unit_cost::text FROM order_lines WHERE id = $1`, line.ID).
		Scan(&unitPrice, &unitCost)
	require.NoError(t, err)
	assert.True(t, mustDecimal("10.00").Equal(mustDecimal(unitPrice)))
	assert.True(t, mustDecimal("6.00").Equal(mustDecimal(unitCost)))

	// A new commit sees the new catalog state.
	line2, err := store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	assert.True(t, mustDecimal("15.00").Equal(line2.UnitPrice))

	got, err := store.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, mustDecimal("45.00").Equal(got.Total), "total = 30.00 + 15.00, got %s", got.Total)
}

func TestCommitLine_DecrementsStock(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	createProduct(t, pool, "p1", "1.00", "2.00", 10, true)
	createCustomer(t, pool, "c1")
	o := openOrder(t, pool, "c1")

	store := postgres.NewOrderStore(pool)
	_, err := store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "p1", Quantity: 4})
	require.NoError(t, err)

	assert.Equal(t, 6, productStock(t, pool, "p1"))
}

func TestCommitLine_InsufficientStockLeavesNoTrace(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	createProduct(t, pool, "p1", "1.00", "2.00", 3, true)
	createCustomer(t, pool, "c1")
	o := openOrder(t, pool, "c1")

	store := postgres.NewOrderStore(pool)
	_, err := store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "p1", Quantity: 5})

	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 5, stockErr.Requested)

	// Nothing moved: stock, lines, and total are all as before.
	assert.Equal(t, 3, productStock(t, pool, "p1"))
	assert.Equal(t, 0, lineCount(t, pool, o.ID))

	got, err := store.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Total.IsZero())
}

func TestCommitLine_ExactRemainingStock(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	createProduct(t, pool, "p1", "1.00", "2.00", 5, true)
	createCustomer(t, pool, "c1")
	o := openOrder(t, pool, "c1")

	store := postgres.NewOrderStore(pool)
	_, err := store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "p1", Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, productStock(t, pool, "p1"))

	// The next unit is rejected.
	_, err = store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "p1", Quantity: 1})
	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
}

func TestCommitLine_UnknownProductAndOrder(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	createCustomer(t, pool, "c1")
	o := openOrder(t, pool, "c1")

	store := postgres.NewOrderStore(pool)

	_, err := store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "ghost", Quantity: 1})
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = store.CommitLine(ctx, order.CommitParams{OrderID: "ghost", ProductID: "ghost", Quantity: 1})
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCommitLine_InactiveProduct(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	createProduct(t, pool, "retired", "1.00", "2.00", 10, false)
	createCustomer(t, pool, "c1")
	o := openOrder(t, pool, "c1")

	store := postgres.NewOrderStore(pool)
	_, err := store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "retired", Quantity: 1})
	require.ErrorIs(t, err, catalog.ErrInactive)

	assert.Equal(t, 10, productStock(t, pool, "retired"))
}

func TestCommitLine_RejectedAfterPayment(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	createProduct(t, pool, "p1", "1.00", "2.00", 10, true)
	createCustomer(t, pool, "c1")
	o := openOrder(t, pool, "c1")

	store := postgres.NewOrderStore(pool)
	_, err := store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusPaid))

	_, err = store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "p1", Quantity: 1})
	require.ErrorIs(t, err, order.ErrNotPending)
}

func TestCommitLine_ConcurrentSharedOrderTotal(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	const workers = 20

	createCustomer(t, pool, "c1")
	// One product per worker, ample stock, so the only shared row is the order.
	for i := range workers {
		price := decimal.NewFromInt(int64(i + 1)).Add(mustDecimal("0.50")).StringFixed(2)
		createProduct(t, pool, fmt.Sprintf("p%02d", i), "1.00", price, 100, true)
	}

	store := postgres.NewOrderStore(pool)
	o := openOrder(t, pool, "c1")

	var (
		mu        sync.Mutex
		subtotals []decimal.Decimal
		wg        sync.WaitGroup
	)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			line, err := store.CommitLine(ctx, order.CommitParams{
				OrderID:   o.ID,
				ProductID: fmt.Sprintf("p%02d", i),
				Quantity:  i%3 + 1,
			})
			if err != nil {
				t.Errorf("commit line %d: %v", i, err)
				return
			}
			mu.Lock()
			subtotals = append(subtotals, line.Subtotal)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, subtotals, workers)
	want := decimal.Zero
	for _, s := range subtotals {
		want = want.Add(s)
	}

	// No lost updates: the total equals the sum of every committed subtotal,
	// regardless of completion order.
	got, err := store.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, want.Equal(got.Total), "want total %s, got %s", want, got.Total)
	assert.Equal(t, workers, lineCount(t, pool, o.ID))
}

func TestCommitLine_ConcurrentNoOversell(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	const (
		stock   = 15
		workers = 25
	)

	createProduct(t, pool, "hot", "1.00", "2.00", stock, true)
	createCustomer(t, pool, "c1")

	store := postgres.NewOrderStore(pool)

	// One order per worker so total checks stay per-order simple.
	orders := make([]*order.Order, workers)
	for i := range orders {
		orders[i] = openOrder(t, pool, "c1")
	}

	var (
		committed atomic.Int32
		rejected  atomic.Int32
		wg        sync.WaitGroup
	)
	for i := range workers {
		wg.Add(1)
		go func(o *order.Order) {
			defer wg.Done()
			_, err := store.CommitLine(ctx, order.CommitParams{OrderID: o.ID, ProductID: "hot", Quantity: 1})
			switch {
			case err == nil:
				committed.Add(1)
			default:
				var stockErr *order.InsufficientStockError
				if errors.As(err, &stockErr) || errors.Is(err, order.ErrContention) {
					rejected.Add(1)
					return
				}
				t.Errorf("unexpected commit error: %v", err)
			}
		}(orders[i])
	}
	wg.Wait()

	// Every unit of stock is accounted for exactly once.
	remaining := productStock(t, pool, "hot")
	assert.Equal(t, stock, int(committed.Load())+remaining, "committed + remaining must equal initial stock")
	assert.Equal(t, workers, int(committed.Load()+rejected.Load()))
	assert.GreaterOrEqual(t, remaining, 0)

	var totalLines int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_lines WHERE product_id = 'hot'`).Scan(&totalLines)
	require.NoError(t, err)
	assert.Equal(t, int(committed.Load()), totalLines)
}

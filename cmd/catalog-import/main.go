// Command catalog-import loads gzip-compressed CSV catalog feeds into the
// products table. Feed files are processed concurrently and rows are upserted
// in batches; stock of existing products is left untouched so a feed refresh
// never fights the commit path.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/sales-ledger/internal/domain/catalog"
	"github.com/xenking/sales-ledger/internal/storage/postgres"
)

const (
	batchSize     = 500
	progressEvery = 10_000
)

// feedColumns is the required CSV header, in order.
var feedColumns = []string{"id", "name", "category", "cost", "price", "stock", "active"}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz catalog feeds")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz feeds found in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewProductStore(pool)

	slog.Info("importing feeds", slog.Int("files", len(files)))

	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(importFeed(ctx, f, store, &total))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("all feeds imported", slog.Int64("products", total.Load()))
	return nil
}

// importFeed streams one gzipped CSV feed and upserts its rows in batches.
func importFeed(ctx context.Context, path string, store *postgres.ProductStore, total *atomic.Int64) func() error {
	return func() error {
		name := filepath.Base(path)

		batch := make([]catalog.Product, 0, batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			written, err := store.Upsert(ctx, batch)
			if err != nil {
				return errors.Wrapf(err, "upsert batch from %s", name)
			}
			total.Add(written)
			batch = batch[:0]
			return nil
		}

		var rows uint64
		if err := streamFeed(ctx, path, func(p catalog.Product) error {
			batch = append(batch, p)
			rows++
			if rows%progressEvery == 0 {
				slog.Info("import progress", slog.String("feed", name), slog.Uint64("rows", rows))
			}
			if len(batch) == batchSize {
				return flush()
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "stream feed %s", name)
		}
		if err := flush(); err != nil {
			return err
		}

		slog.Info("feed imported", slog.String("feed", name), slog.Uint64("rows", rows))
		return nil
	}
}

// streamFeed opens a gzip-compressed CSV feed, validates its header, and
// calls fn for each parsed product row.
func streamFeed(ctx context.Context, path string, fn func(catalog.Product) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = len(feedColumns)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return errors.Wrap(err, "read header")
	}
	for i, col := range feedColumns {
		if header[i] != col {
			return errors.Errorf("unexpected header column %d: got %q, want %q", i, header[i], col)
		}
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read line %d", line)
		}

		p, err := parseProduct(record)
		if err != nil {
			return errors.Wrapf(err, "parse line %d", line)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}

func parseProduct(record []string) (catalog.Product, error) {
	cost, err := decimal.NewFromString(record[3])
	if err != nil {
		return catalog.Product{}, errors.Wrap(err, "parse cost")
	}
	price, err := decimal.NewFromString(record[4])
	if err != nil {
		return catalog.Product{}, errors.Wrap(err, "parse price")
	}
	stock, err := strconv.Atoi(record[5])
	if err != nil {
		return catalog.Product{}, errors.Wrap(err, "parse stock")
	}
	active, err := strconv.ParseBool(record[6])
	if err != nil {
		return catalog.Product{}, errors.Wrap(err, "parse active")
	}

	if record[0] == "" {
		return catalog.Product{}, errors.New("empty product id")
	}
	if price.IsNegative() || cost.IsNegative() {
		return catalog.Product{}, errors.New("negative price or cost")
	}
	if stock < 0 {
		return catalog.Product{}, errors.New("negative stock")
	}

	return catalog.Product{
		ID:       record[0],
		Name:     record[1],
		Category: record[2],
		Cost:     cost,
		Price:    price,
		Stock:    stock,
		Active:   active,
	}, nil
}

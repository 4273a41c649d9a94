// Command pricing-import loads discount codes and shipping rates from gzipped
// CSV files into PostgreSQL, dropping any code listed in a revocation file.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shopping-basket/internal/domain/pricing"
	"github.com/xenking/shopping-basket/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

type options struct {
	discountsPath string
	shippingPath  string
	revoked       []string
	databaseURL   string
	bloomCapacity uint
	dryRun        bool
}

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var opts options

	flag.StringVar(&opts.discountsPath, "discounts", "", "gzipped CSV of code,percentage rows")
	flag.StringVar(&opts.shippingPath, "shipping", "", "gzipped CSV of region,cost rows")
	flag.Var((*listFlag)(&opts.revoked), "revoked", "gzipped revoked code list, one code per line (repeatable)")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.bloomCapacity, "bloom-capacity", 10_000_000, "expected number of codes per revoked file")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "validate inputs without writing to the database")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" && !opts.dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("pricing import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("pricing import completed successfully")
}

func run(ctx context.Context, opts options) error {
	if opts.discountsPath == "" && opts.shippingPath == "" {
		return errors.New("nothing to import: set --discounts and/or --shipping")
	}

	var discounts, shipping map[string]string
	if opts.discountsPath != "" {
		var err error
		discounts, err = readPairs(ctx, opts.discountsPath)
		if err != nil {
			return errors.Wrap(err, "read discounts")
		}
		slog.Info("discount codes read", slog.Int("count", len(discounts)))

		if len(opts.revoked) > 0 {
			revoked, err := findRevoked(ctx, discounts, opts.revoked, opts.bloomCapacity)
			if err != nil {
				return errors.Wrap(err, "filter revoked codes")
			}
			for _, code := range revoked {
				delete(discounts, code)
			}
			slog.Info("revoked codes dropped", slog.Int("count", len(revoked)))
		}
	}
	if opts.shippingPath != "" {
		var err error
		shipping, err = readPairs(ctx, opts.shippingPath)
		if err != nil {
			return errors.Wrap(err, "read shipping rates")
		}
		slog.Info("shipping rates read", slog.Int("count", len(shipping)))
	}

	tables, err := pricing.ParseTables(discounts, shipping, "")
	if err != nil {
		return errors.Wrap(err, "validate tables")
	}

	if opts.dryRun {
		slog.Info("dry run, skipping database write",
			slog.Int("discount_codes", len(tables.Discounts)),
			slog.Int("shipping_regions", len(tables.Shipping)),
		)
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// A nil map leaves the corresponding table untouched.
	var writeDiscounts, writeShipping map[string]decimal.Decimal
	if opts.discountsPath != "" {
		writeDiscounts = tables.Discounts
	}
	if opts.shippingPath != "" {
		writeShipping = tables.Shipping
	}
	if err := repository.NewPricingRepository(pool).Replace(ctx, writeDiscounts, writeShipping); err != nil {
		return errors.Wrap(err, "write pricing tables")
	}

	slog.Info("pricing tables written",
		slog.Int("discount_codes", len(writeDiscounts)),
		slog.Int("shipping_regions", len(writeShipping)),
	)
	return nil
}

// readPairs reads a gzipped two-column CSV into a map. Lines starting with #
// are comments; a first row whose value is not a number is treated as a
// header.
func readPairs(ctx context.Context, path string) (map[string]string, error) {
	rc, err := openGz(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	r := csv.NewReader(rc)
	r.Comment = '#'
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true

	out := make(map[string]string)
	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}

		key, value := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		if first {
			if _, err := decimal.NewFromString(value); err != nil {
				continue
			}
		}
		if _, dup := out[key]; dup {
			return nil, errors.Errorf("%s: duplicate key %q", path, key)
		}
		out[key] = value
	}
	return out, nil
}

// findRevoked returns the codes that appear in any revoked file, sorted.
//
// Pass 1 builds one bloom filter per file concurrently and marks codes that
// test positive as suspects. Pass 2 re-streams the files and keeps only the
// suspects that are actually listed.
func findRevoked(ctx context.Context, codes map[string]string, files []string, capacity uint) ([]string, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files, capacity)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	suspects := make(map[string]struct{})
	for code := range codes {
		for _, f := range filters {
			if f.TestString(code) {
				suspects[code] = struct{}{}
				break
			}
		}
	}
	slog.Info("pass 1 complete", slog.Int("suspects", len(suspects)))
	if len(suspects) == 0 {
		return nil, nil
	}

	slog.Info("pass 2: confirming suspects")

	found := make([]map[string]struct{}, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			hits := make(map[string]struct{})
			if err := streamGzLines(gctx, path, func(code string) {
				if _, ok := suspects[code]; ok {
					hits[code] = struct{}{}
				}
			}); err != nil {
				return errors.Wrapf(err, "confirm file %d", i+1)
			}
			found[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]struct{})
	for _, hits := range found {
		for code := range hits {
			merged[code] = struct{}{}
		}
	}
	revoked := make([]string, 0, len(merged))
	for code := range merged {
		revoked = append(revoked, code)
	}
	slices.Sort(revoked)
	return revoked, nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64

			if err := streamGzLines(ctx, path, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// streamGzLines calls fn for each non-blank trimmed line of a gzipped file.
func streamGzLines(ctx context.Context, path string, fn func(line string)) error {
	rc, err := openGz(path)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			fn(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

type gzFile struct {
	*pgzip.Reader
	file *os.File
}

func (g gzFile) Close() error {
	gzErr := g.Reader.Close()
	if err := g.file.Close(); err != nil {
		return err
	}
	return gzErr
}

func openGz(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	return gzFile{Reader: gz, file: f}, nil
}

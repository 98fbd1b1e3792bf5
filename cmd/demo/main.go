package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"powershare-ledger/internal/app"
	"powershare-ledger/internal/config"
	"powershare-ledger/internal/ledger"
	"powershare-ledger/internal/metrics"
	"powershare-ledger/internal/model"
	"powershare-ledger/internal/storage"
)

// Demo:
// - Seed a handful of selling grids into an in-memory ledger
// - Let many buyers hit the market concurrently
// - Check that no units were created or lost, and print the results
func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (optional; seed section supplies sellers)")
	sellers := flag.Int("sellers", 5, "Number of selling grids when no seed is configured")
	buyers := flag.Int("buyers", 20, "Number of concurrent buyers")
	orders := flag.Int("orders", 10, "Orders per buyer")
	maxUnits := flag.Int64("max-units", 8, "Largest single order")
	outCSV := flag.String("out", "", "Optional path to write the first buyer's history CSV")
	verbose := flag.Bool("v", false, "Log every rejection")
	flag.Parse()

	log, err := app.NewLogger("development", *verbose)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	if !*verbose {
		log = zap.NewNop()
	}

	cfg := config.Default()
	if *cfgPath != "" {
		if cfg, err = config.Load(*cfgPath); err != nil {
			panic(err)
		}
	}
	seeds := cfg.Seed
	if len(seeds) == 0 {
		seeds = demoSellers(*sellers)
	}

	ctx := context.Background()
	m := metrics.New()
	rejections := &rejectionCounter{kinds: map[string]int{}}
	engine, err := app.NewEngine(cfg, storage.NewMemory(), log, m, rejections)
	if err != nil {
		panic(err)
	}
	if _, err := app.Seed(ctx, engine, seeds, log); err != nil {
		panic(err)
	}

	before := totalUnits(ctx, engine)
	offers, err := engine.ListOffers(ctx)
	if err != nil {
		panic(err)
	}
	if len(offers) == 0 {
		fmt.Fprintln(os.Stderr, "no grids are offering units; nothing to simulate")
		os.Exit(1)
	}
	fmt.Printf("market open: %d offers, %d units in the ledger\n", len(offers), before)

	g, gctx := errgroup.WithContext(ctx)
	for b := 0; b < *buyers; b++ {
		buyer := model.Account{ID: fmt.Sprintf("buyer-%02d", b), Name: fmt.Sprintf("Buyer %d", b)}
		rng := rand.New(rand.NewPCG(uint64(b), 42))
		g.Go(func() error {
			for i := 0; i < *orders; i++ {
				o := offers[rng.IntN(len(offers))]
				units := 1 + rng.Int64N(*maxUnits)
				_, err := engine.Buy(gctx, buyer, o.GridID, units)
				if err != nil && ledger.Kind(err) == "INTERNAL" {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panic(err)
	}

	after := totalUnits(ctx, engine)
	fmt.Printf("market closed: %d units in the ledger\n", after)
	if before != after {
		fmt.Fprintf(os.Stderr, "units not conserved: %d before, %d after\n", before, after)
		os.Exit(1)
	}

	grids, err := engine.ListGrids(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Println("\nsellers:")
	for _, gr := range grids {
		if gr.Available {
			fmt.Printf("  %-16s units=%-5d still offered=%d\n", gr.Name, gr.Units, gr.ForSale)
		}
	}

	fmt.Println("\nrejections:")
	for _, k := range rejections.sorted() {
		fmt.Printf("  %-20s %d\n", k, rejections.kinds[k])
	}

	first := "buyer-00"
	h, err := engine.TransactionHistory(ctx, first)
	if err != nil {
		panic(err)
	}
	fmt.Printf("\n%s: %d trades, %d units bought\n", first, h.TotalCount, h.TotalUnitsBought)
	if *outCSV != "" {
		if err := ledger.WriteHistoryCSV(*outCSV, h); err != nil {
			panic(err)
		}
		fmt.Printf("wrote %s\n", *outCSV)
	}
}

func demoSellers(n int) []config.SeedGrid {
	out := make([]config.SeedGrid, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, config.SeedGrid{
			Owner:        fmt.Sprintf("seller-%02d", i),
			OwnerName:    fmt.Sprintf("Seller %d", i),
			Name:         fmt.Sprintf("Solar farm %d", i),
			Latitude:     6.9 + float64(i)*0.1,
			Longitude:    79.8 + float64(i)*0.1,
			Units:        int64(100 + 20*i),
			UnitsForSale: int64(40 + 10*i),
			Available:    true,
		})
	}
	return out
}

func totalUnits(ctx context.Context, e *ledger.Engine) int64 {
	grids, err := e.ListGrids(ctx)
	if err != nil {
		panic(err)
	}
	var sum int64
	for _, g := range grids {
		sum += g.Units
	}
	return sum
}

type rejectionCounter struct {
	ledger.NopObserver
	mu    sync.Mutex
	kinds map[string]int
}

func (r *rejectionCounter) TradeRejected(kind string) {
	r.mu.Lock()
	r.kinds[kind]++
	r.mu.Unlock()
}

func (r *rejectionCounter) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

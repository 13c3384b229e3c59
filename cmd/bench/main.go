// Command bench replays synthetic traces against the CART cache and a
// baseline LRU of the same capacity and prints both miss ratios
// (less is better). Optional pprof/Prometheus endpoints.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tridemax/CART/cache"
	"github.com/tridemax/CART/internal/lruref"
	"github.com/tridemax/CART/internal/mtrand"
	pmet "github.com/tridemax/CART/metrics/prom"
)

// trialLoader materializes each key as its own value and counts acquires
// (= misses of the CART cache).
type trialLoader struct {
	acquires atomic.Int64
}

func (l *trialLoader) Acquire(key int) (*int, error) {
	l.acquires.Add(1)
	v := key
	return &v, nil
}

func (l *trialLoader) Release(int, *int) {}

func (l *trialLoader) SizeOf(*int) int64 { return 8 }

// binRange is one bucket of the binned mixture draw.
type binRange struct{ start, len int }

var bins = [6]binRange{
	{0, 150}, {150, 350}, {500, 500}, {1000, 1500}, {2500, 2500}, {5000, 10000},
}

const entireRange = 10000

func main() {
	var (
		tries = flag.Int("tries", 1_005_000, "accesses per trial")
		sizes = flag.String("sizes", "100,500,1000", "comma-separated cache sizes")
		seed  = flag.Uint("seed", 1, "trace seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", "", "serve Prometheus metrics at addr; empty = disabled")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	var metrics cache.Metrics
	if *metricsAddr != "" {
		metrics = pmet.New(nil, "cart", "bench", nil)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Printf("metrics: serving at %s", *metricsAddr)
			log.Println(http.ListenAndServe(*metricsAddr, nil))
		}()
	}

	var cacheSizes []int
	for _, s := range strings.Split(*sizes, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n <= 0 {
			log.Fatalf("bad cache size %q", s)
		}
		cacheSizes = append(cacheSizes, n)
	}

	fmt.Println("Less is better.")

	uniform := func(rnd *mtrand.Rand) int {
		return rnd.IntRange(0, entireRange)
	}
	binned := func(rnd *mtrand.Rand) int {
		b := bins[rnd.IntRange(0, len(bins))]
		return rnd.IntRange(b.start, b.start+b.len)
	}

	for _, size := range cacheSizes {
		runTrial(fmt.Sprintf("Uniform draw, cache size %d", size), size, *tries, uint32(*seed), metrics, uniform)
	}
	for _, size := range cacheSizes {
		runTrial(fmt.Sprintf("Bins draw, cache size %d", size), size, *tries, uint32(*seed), metrics, binned)
	}
}

// runTrial replays one trace through both caches and prints the miss ratios.
func runTrial(title string, size, tries int, seed uint32, metrics cache.Metrics, draw func(*mtrand.Rand) int) {
	loader := &trialLoader{}
	cart := cache.New[int, int](cache.Options[int, int]{
		Loader:      loader,
		MaxElements: size,
		Metrics:     metrics,
	})

	lru := lruref.New[int, int](size, func(k int) int { return k })

	rnd := mtrand.New(seed)
	for i := 0; i < tries; i++ {
		key := draw(rnd)

		h, err := cart.Lookup(key)
		if err != nil {
			log.Fatalf("lookup %d: %v", key, err)
		}
		h.Release()

		lru.Get(key)
	}

	cartMisses := loader.acquires.Load()
	fmt.Println(title)
	fmt.Printf("  CART result: %g, missed %d / %d\n", float64(cartMisses)/float64(tries), cartMisses, tries)
	fmt.Printf("  LRU result: %g, missed %d / %d\n", float64(lru.Misses())/float64(tries), lru.Misses(), tries)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	promadapter "github.com/codewandler/ert-go/adapters/prometheus"
	"github.com/codewandler/ert-go/core/router"
)

// === Config ===

// Router size and seed come from ERT_WORKERS / ERT_SEED (see router.Config).

var (
	logLevel    = slog.LevelInfo
	N           = getEnvInt("N", 1_000_000)
	numKeys     = getEnvInt("KEYS", 10_000)
	inflight    = getEnvInt("INFLIGHT", 10_000)
	metricsAddr = getEnv("METRICS_ADDR", "")
	holdMetrics = getEnvBool("HOLD", false)
)

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// sequence checks that every key observes its submissions in order. It is
// only touched from the worker owning a key, so it needs no lock per key.
type sequence struct {
	next []int
}

func (s *sequence) observe(key, n int) error {
	if s.next[key] != n {
		return fmt.Errorf("key %d: expected #%d, got #%d", key, s.next[key], n)
	}
	s.next[key]++
	return nil
}

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exit.
func run() int {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := router.LoadConfig(ctx)
	if err != nil {
		log.Error("invalid config", slog.Any("err", err))
		return 2
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	r, err := router.New(ctx, cfg.Workers, append(cfg.Options(),
		router.WithLogger(log),
		router.WithMetrics(promadapter.NewRouterMetrics(reg)),
	)...)
	if err != nil {
		log.Error("failed to create router", slog.Any("err", err))
		return 2
	}
	defer r.Close()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", slog.Any("err", err))
			}
		}()
		defer func() { _ = srv.Close() }()
		log.Info("serving metrics", slog.String("addr", metricsAddr))
	}

	log.Info("==================================")
	log.Info("Starting ...",
		slog.String("router", r.ID()),
		slog.Int("workers", r.Len()),
		slog.Int("n", N),
		slog.Int("keys", numKeys),
	)

	var (
		seq      = &sequence{next: make([]int, numKeys)}
		counts   = make([]int, numKeys)
		sem      = make(chan struct{}, inflight)
		wg       sync.WaitGroup
		failMu   sync.Mutex
		failures []error
		startAt  = time.Now()
	)

	for i := 0; i < N; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			log.Warn("interrupted", slog.Int("submitted", i))
			return 130
		}

		key := i % numKeys
		n := counts[key]
		counts[key]++

		via := router.Submit(r, key, func(ctx context.Context) (int, error) {
			return router.WorkerID(ctx), seq.observe(key, n)
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := via.Await(ctx); err != nil {
				failMu.Lock()
				failures = append(failures, err)
				failMu.Unlock()
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(startAt)
	log.Info("done",
		slog.Duration("elapsed", elapsed),
		slog.Float64("tasks_per_sec", float64(N)/elapsed.Seconds()),
		slog.Int("failures", len(failures)),
	)
	for i, err := range failures {
		if i == 10 {
			log.Error("more failures omitted", slog.Int("total", len(failures)))
			break
		}
		log.Error("ordering violated", slog.Any("err", err))
	}

	if holdMetrics && metricsAddr != "" {
		log.Info("holding for metrics scrape, interrupt to exit")
		<-ctx.Done()
	}
	r.Close()
	if err := r.Wait(); err != nil {
		log.Error("worker terminated", slog.Any("err", err))
		return 1
	}
	if len(failures) > 0 {
		return 1
	}
	return 0
}

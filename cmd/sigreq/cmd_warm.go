// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gitlab.com/accumulatenetwork/sigreq/internal/engine"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"golang.org/x/sync/errgroup"
)

var cmdWarm = &cobra.Command{
	Use:   "warm <entity>...",
	Short: "Load the key material of entities into the cache",
	Args:  cobra.MinimumNArgs(1),
	Run:   warm,
}

var flagWarm struct {
	Concurrency int
	Force       bool
	Listen      string
	Wait        bool
	Schedule    string
}

func init() {
	cmdMain.AddCommand(cmdWarm)

	cmdWarm.Flags().IntVarP(&flagWarm.Concurrency, "concurrency", "c", 8, "Number of lookups to run at once")
	cmdWarm.Flags().BoolVar(&flagWarm.Force, "force", false, "Refresh material that is not fresh")
	cmdWarm.Flags().StringVar(&flagWarm.Listen, "listen", "", "Override the configured metrics address")
	cmdWarm.Flags().BoolVar(&flagWarm.Wait, "wait", false, "Keep serving metrics after warming until interrupted")
	cmdWarm.Flags().StringVar(&flagWarm.Schedule, "schedule", "", "Warm again on a cron schedule (e.g. '*/5 * * * *') until interrupted")
}

func warm(_ *cobra.Command, args []string) {
	keys := make([]keycache.EntityKey, len(args))
	for i, arg := range args {
		keys[i] = parseEntity(arg)
	}

	e, cfg := openEngine()
	defer e.Close()

	listen := cfg.Instrumentation.Listen
	if flagWarm.Listen != "" {
		listen = flagWarm.Listen
	}
	stop := serveMetrics(listen)
	defer stop()

	var schedule cron.Schedule
	if flagWarm.Schedule != "" {
		var err error
		schedule, err = cron.ParseStandard(flagWarm.Schedule)
		checkf(err, "schedule")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	failed := warmAll(ctx, e, keys)
	if schedule != nil {
		for {
			next := schedule.Next(time.Now())
			fmt.Printf("Next run %s\n", humanize.Time(next))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(next)):
			}
			failed = warmAll(ctx, e, keys)
		}
	}

	if flagWarm.Wait && listen != "" {
		fmt.Printf("Serving metrics on %s, press Ctrl+C to exit\n", listen)
		<-ctx.Done()
	}
	if failed > 0 {
		fatalf("%d of %d lookups failed", failed, len(keys))
	}
}

// warmAll looks up every key and returns the number of failures.
func warmAll(ctx context.Context, e *engine.Engine, keys []keycache.EntityKey) int {
	var failed atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(flagWarm.Concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			_, err := e.Lookup(ctx, key, flagWarm.Force)
			if err != nil {
				failed.Add(1)
				fmt.Fprintln(os.Stderr, colorBad.Sprint("🗴"), key, err)
				return nil
			}
			fmt.Println(colorSuccess.Sprint("✔"), key)
			return nil
		})
	}
	_ = g.Wait()
	return int(failed.Load())
}

// serveMetrics serves Prometheus metrics until the returned function is
// called.
func serveMetrics(listen string) func() {
	if listen == "" {
		return func() {}
	}

	l, err := net.Listen("tcp", listen)
	checkf(err, "listen on %s", listen)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		),
	))

	// Default HTTP server plus slow-loris prevention
	s := &http.Server{Handler: mux, ReadHeaderTimeout: time.Minute}
	go func() {
		err := s.Serve(l)
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server stopped (metrics)", "error", err)
		}
	}()

	return func() { _ = s.Close() }
}

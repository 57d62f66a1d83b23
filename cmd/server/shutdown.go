package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// stopFn is one component's shutdown hook.
type stopFn struct {
	name string
	fn   func(context.Context) error
}

// drain waits for the load balancer to notice the failed readiness probe.
// A second signal cuts the wait short.
func drain(L log.Logger, seconds int) {
	ctx := context.Background()
	L.Info(ctx, "draining", "drain_seconds", seconds)

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	select {
	case <-time.After(time.Duration(seconds) * time.Second):
		L.Info(ctx, "drain period complete")
	case <-force:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}

// shutdown runs each hook in order, giving each an equal slice of the total
// budget. Nil hooks are skipped.
func shutdown(L log.Logger, budgetSeconds int, stops []stopFn) {
	if len(stops) == 0 {
		return
	}
	budget := time.Duration(budgetSeconds) * time.Second
	per := budget / time.Duration(len(stops))

	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stops {
		if s.fn == nil {
			continue
		}
		cctx, ccancel := context.WithTimeout(ctx, per)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}
}

// SPDX-License-Identifier: MIT

// Command controller is the fleet-wide process: it accepts car
// registrations and call requests on a single TCP listener and answers
// CALL frames with a mocked first-fit dispatch.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/kempy-elevator/fabric/internal/config"
	"github.com/kempy-elevator/fabric/internal/controller"
	"github.com/kempy-elevator/fabric/internal/metrics"
	"github.com/kempy-elevator/fabric/internal/netsession"
	"github.com/kempy-elevator/fabric/internal/xlog"
	"golang.org/x/sync/errgroup"
)

func main() {
	xlog.Configure(xlog.Config{Level: "info", Service: "controller"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, envAddrs()); err != nil {
		fmt.Fprintf(os.Stderr, "controller: %v\n", err)
		os.Exit(1)
	}
}

// addrs bundles the environment-configurable endpoints a controller
// process needs, so run can be exercised with test addresses instead
// of reading the environment directly.
type addrs struct {
	listen         string
	debug          string
	fleetFile      string
	liveRosterFile string
}

func envAddrs() addrs {
	a := addrs{listen: netsession.DefaultAddr}
	if v := os.Getenv("CONTROLLER_ADDR"); v != "" {
		a.listen = v
	}
	a.debug = os.Getenv("CONTROLLER_DEBUG_ADDR")
	a.fleetFile = os.Getenv("CONTROLLER_FLEET_FILE")
	a.liveRosterFile = os.Getenv("CONTROLLER_LIVE_ROSTER_FILE")
	return a
}

// run wires the registry, TCP listener and optional debug mux and
// blocks until ctx is cancelled or a supervised goroutine fails.
func run(ctx context.Context, a addrs) error {
	logger := xlog.WithComponent("controller")

	fleet, err := config.NewHolder(a.fleetFile)
	if err != nil {
		return fmt.Errorf("load fleet roster: %w", err)
	}
	if err := fleet.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("fleet roster hot-reload disabled")
	}
	logger.Info().Int("cars", len(fleet.Current().Cars)).Msg("static fleet roster loaded")

	registry := controller.NewRegistry()
	registry.LiveRosterPath = a.liveRosterFile
	srv := controller.NewServer(registry)

	ln, err := net.Listen("tcp", a.listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.listen, err)
	}
	logger.Info().Str("addr", a.listen).Msg("controller listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, ln) })

	if a.debug != "" {
		debugLn, err := net.Listen("tcp", a.debug)
		if err != nil {
			logger.Warn().Err(err).Str("addr", a.debug).Msg("debug listener failed to start, continuing without it")
		} else {
			mux := metrics.NewBareMux()
			g.Go(func() error { return metrics.Serve(gctx, debugLn, mux) })
		}
	}

	return g.Wait()
}

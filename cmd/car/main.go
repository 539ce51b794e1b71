// SPDX-License-Identifier: MIT

// Command car is the long-running per-elevator daemon: it owns a
// shared-memory control block, drives the door/motion state machine, and
// maintains a reconnecting TCP session with the controller.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kempy-elevator/fabric/internal/carfsm"
	"github.com/kempy-elevator/fabric/internal/config"
	"github.com/kempy-elevator/fabric/internal/controlblock"
	"github.com/kempy-elevator/fabric/internal/metrics"
	"github.com/kempy-elevator/fabric/internal/netsession"
	"github.com/kempy-elevator/fabric/internal/telemetry"
	"github.com/kempy-elevator/fabric/internal/xlog"
	"golang.org/x/sync/errgroup"
)

func main() {
	xlog.Configure(xlog.Config{Level: "info", Service: "car"})

	args, err := config.ParseCarArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := xlog.WithComponent("car").With().Str(xlog.FieldCarName, args.Name).Logger()

	block, err := controlblock.Create(args.Name, args.Range)
	if err != nil {
		fmt.Fprintf(os.Stderr, "car: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := block.Unlink(); err != nil {
			logger.Warn().Err(err).Msg("failed to unlink control block on shutdown")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		ServiceName: "car",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled, continuing without it")
		tp, _ = telemetry.NewProvider(ctx, telemetry.Config{})
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	delay := time.Duration(args.Delay) * time.Millisecond
	machine := carfsm.New(block, delay, args.Name)
	session := netsession.New(block, args.Name, delay)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return machine.Run(gctx) })
	g.Go(func() error { return session.Run(gctx) })

	debugAddr := os.Getenv("CAR_DEBUG_ADDR")
	if debugAddr != "" {
		ln, err := net.Listen("tcp", debugAddr)
		if err != nil {
			logger.Warn().Err(err).Str("addr", debugAddr).Msg("debug listener failed to start, continuing without it")
		} else {
			mux := metrics.NewMux(block)
			g.Go(func() error { return metrics.Serve(gctx, ln, mux) })
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("car process exiting on error")
		os.Exit(1)
	}
}

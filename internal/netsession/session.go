// SPDX-License-Identifier: MIT

// Package netsession drives a car's TCP session with the controller: a
// reconnect loop, a periodic STATUS publisher, and an inbound FLOOR
// reader, running independently so a slow or backlogged peer cannot stall
// heartbeat cadence, and vice versa.
package netsession

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kempy-elevator/fabric/internal/controlblock"
	"github.com/kempy-elevator/fabric/internal/floor"
	"github.com/kempy-elevator/fabric/internal/frame"
	"github.com/kempy-elevator/fabric/internal/metrics"
	"github.com/kempy-elevator/fabric/internal/telemetry"
	"github.com/kempy-elevator/fabric/internal/xlog"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = telemetry.Tracer("netsession")

// DefaultAddr is the controller's listen address.
const DefaultAddr = "127.0.0.1:3000"

// modePollInterval bounds how quickly a Disconnected session notices that
// individual_service_mode/emergency_mode cleared. A Connected session
// checks for either one being set on each STATUS tick (every Delay).
const modePollInterval = 50 * time.Millisecond

// Session owns one car's controller connection lifecycle.
type Session struct {
	Block   *controlblock.Block
	CarName string
	Addr    string
	Delay   time.Duration

	// Dial is overridable for tests; defaults to net.Dial("tcp", Addr).
	Dial func(ctx context.Context, addr string) (net.Conn, error)

	Logger zerolog.Logger
}

// New constructs a Session with a component-scoped logger and a real
// dialer. Addr is set to DefaultAddr.
func New(block *controlblock.Block, carName string, delay time.Duration) *Session {
	return &Session{
		Block:   block,
		CarName: carName,
		Addr:    DefaultAddr,
		Delay:   delay,
		Dial: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		Logger: xlog.Derive(func(c *zerolog.Context) {
			*c = c.Str("component", "network").Str(xlog.FieldCarName, carName)
		}),
	}
}

// modeActive reports whether a mode that forbids a controller session is
// currently latched.
func modeActive(r controlblock.Record) bool {
	return r.IndividualServiceMode || r.EmergencyMode
}

// Run drives the Disconnected/Connected session loop until ctx is
// cancelled. It never returns a non-nil error for ordinary network
// failures: those are logged and retried, matching the network loop's
// "never fatal" error treatment.
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		rec, err := s.Block.Snapshot()
		if err != nil {
			return err
		}
		if modeActive(rec) {
			if !s.sleep(ctx, modePollInterval) {
				return nil
			}
			continue
		}

		conn, connID, err := s.dialAndRegister(ctx, rec)
		if err != nil {
			s.Logger.Warn().Err(err).Str("conn_id", connID).Str(xlog.FieldEvent, "connect_failed").Msg("controller connect failed")
			metrics.RecordReconnect(s.CarName, "dial_failed")
			if !s.sleep(ctx, s.Delay) {
				return nil
			}
			continue
		}

		reason := s.runConnected(ctx, conn, connID)
		_ = conn.Close()
		metrics.RecordReconnect(s.CarName, reason.String())
		if reason == disconnectPeerError {
			if !s.sleep(ctx, s.Delay) {
				return nil
			}
		}
	}
}

func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// dialAndRegister opens one controller connection and sends its CAR
// registration frame. The returned connID tags every log line for this
// connection's lifetime, letting a publisher/reader pair's interleaved
// log lines be correlated even across a busy multi-car deployment.
func (s *Session) dialAndRegister(ctx context.Context, rec controlblock.Record) (net.Conn, string, error) {
	connID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "netsession.connect", trace.WithAttributes(
		attribute.String("car.name", s.CarName),
		attribute.String("controller.addr", s.Addr),
		attribute.String("conn.id", connID),
	))
	defer span.End()

	log := s.Logger.With().Str("conn_id", connID).Logger()

	nc, err := s.Dial(ctx, s.Addr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return nil, connID, err
	}
	fc := frame.NewConn(nc)
	msg := frame.Message{"CAR", s.CarName, floor.Format(int(rec.Lowest)), floor.Format(int(rec.Highest))}
	if err := fc.SendFrame(msg); err != nil {
		_ = nc.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "registration frame send failed")
		return nil, connID, err
	}
	log.Info().Str(xlog.FieldEvent, "connected").Msg("registered with controller")
	return nc, connID, nil
}

type disconnectReason int

const (
	disconnectCtxDone disconnectReason = iota
	disconnectPeerError
	disconnectModeTransition
)

func (r disconnectReason) String() string {
	switch r {
	case disconnectCtxDone:
		return "ctx_done"
	case disconnectPeerError:
		return "peer_error"
	case disconnectModeTransition:
		return "mode_transition"
	default:
		return "unknown"
	}
}

// runConnected drives the publisher and reader concurrently until either
// stops the session: a mode transition, a peer/frame error, or ctx
// cancellation. It returns the reason so the caller knows whether to pace
// a reconnect sleep.
func (s *Session) runConnected(ctx context.Context, nc net.Conn, connID string) disconnectReason {
	fc := frame.NewConn(nc)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := s.Logger.With().Str("conn_id", connID).Logger()

	var once sync.Once
	reason := disconnectCtxDone
	stop := func(r disconnectReason) {
		once.Do(func() {
			reason = r
			cancel()
		})
	}

	var g errgroup.Group
	g.Go(func() error {
		s.publish(ctx, fc, log, stop)
		return nil
	})
	g.Go(func() error {
		s.readInbound(ctx, fc, log, stop)
		return nil
	})
	_ = g.Wait()
	return reason
}

// publish emits STATUS on every tick and watches for a mode transition
// into individual_service_mode/emergency_mode, in which case it sends the
// single required frame and stops the session.
func (s *Session) publish(ctx context.Context, fc *frame.Conn, log zerolog.Logger, stop func(disconnectReason)) {
	ticker := time.NewTicker(s.Delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rec, err := s.Block.Snapshot()
		if err != nil {
			stop(disconnectPeerError)
			return
		}

		if modeActive(rec) {
			var tag string
			if rec.EmergencyMode {
				tag = "EMERGENCY"
			} else {
				tag = "INDIVIDUAL SERVICE"
			}
			if err := fc.SendFrame(frame.Message{tag}); err != nil {
				log.Warn().Err(err).Str(xlog.FieldEvent, "send_failed").Msg("mode frame send failed")
			}
			stop(disconnectModeTransition)
			return
		}

		msg := frame.Message{
			"STATUS",
			rec.Status.String(),
			floor.Format(int(rec.CurrentFloor)),
			floor.Format(int(rec.DestinationFloor)),
		}
		if err := fc.SendFrame(msg); err != nil {
			log.Warn().Err(err).Str(xlog.FieldEvent, "send_failed").Msg("status send failed")
			stop(disconnectPeerError)
			return
		}
	}
}

// readInbound blocks on RecvFrame, dispatching FLOOR commands and
// ignoring anything else, until ctx is cancelled or the peer goes away.
func (s *Session) readInbound(ctx context.Context, fc *frame.Conn, log zerolog.Logger, stop func(disconnectReason)) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = fc.Raw().SetDeadline(time.Unix(0, 1))
		case <-done:
		}
	}()

	for {
		msg, err := fc.RecvFrame()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			stop(disconnectPeerError)
			return
		}
		if err := s.dispatch(msg); err != nil && !errors.Is(err, errOutOfRangeIgnored) {
			log.Debug().Err(err).Str(xlog.FieldEvent, "frame_ignored").Msg("unrecognised or invalid frame")
		}
	}
}

func (s *Session) dispatch(msg frame.Message) error {
	if len(msg) == 0 {
		return errors.New("netsession: empty frame")
	}
	switch msg[0] {
	case "FLOOR":
		if len(msg) != 2 {
			return fmt.Errorf("netsession: malformed FLOOR frame: %v", msg)
		}
		target, err := floor.Parse(msg[1])
		if err != nil {
			return fmt.Errorf("netsession: bad floor label %q: %w", msg[1], err)
		}
		return s.Block.Mutate(func(r *controlblock.Record) error {
			if !r.Range().Contains(target) {
				return errOutOfRangeIgnored
			}
			r.DestinationFloor = int32(target)
			return nil
		})
	default:
		return fmt.Errorf("netsession: unrecognised frame tag %q", msg[0])
	}
}

// errOutOfRangeIgnored aborts the Mutate in dispatch without writing
// destination_floor. It is swallowed by the caller, not treated as a
// dispatch failure: an out-of-range FLOOR is ignored silently.
var errOutOfRangeIgnored = errors.New("netsession: floor out of range, ignored")

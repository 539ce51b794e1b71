// SPDX-License-Identifier: MIT

package controller

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/kempy-elevator/fabric/internal/floor"
	"github.com/kempy-elevator/fabric/internal/frame"
	"github.com/kempy-elevator/fabric/internal/xlog"
	"github.com/rs/zerolog"
)

// Server accepts car and call connections on a single listener and
// dispatches frames to Registry.
type Server struct {
	Registry *Registry
	Logger   zerolog.Logger
}

// NewServer constructs a Server bound to registry.
func NewServer(registry *Registry) *Server {
	return &Server{
		Registry: registry,
		Logger:   xlog.Derive(func(c *zerolog.Context) { *c = c.Str("component", "controller") }),
	}
}

// Serve accepts connections on ln until ctx is cancelled or Accept
// returns an error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("controller: accept: %w", err)
		}
		go s.handleConn(ctx, nc)
	}
}

func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	fc := frame.NewConn(nc)
	msg, err := fc.RecvFrame()
	if err != nil {
		s.Logger.Debug().Err(err).Str(xlog.FieldEvent, "handshake_failed").Msg("connection closed before first frame")
		_ = nc.Close()
		return
	}
	if len(msg) == 0 {
		_ = nc.Close()
		return
	}

	switch msg[0] {
	case "CAR":
		s.handleCar(ctx, fc, msg)
	case "CALL":
		s.handleCall(fc, msg)
		_ = nc.Close()
	default:
		s.Logger.Debug().Str(xlog.FieldEvent, "unrecognised_frame").Strs("tokens", msg).Msg("unrecognised first frame, closing")
		_ = nc.Close()
	}
}

func (s *Server) handleCar(ctx context.Context, fc *frame.Conn, msg frame.Message) {
	if len(msg) != 4 {
		_ = fc.Close()
		return
	}
	low, err1 := floor.Parse(msg[2])
	high, err2 := floor.Parse(msg[3])
	if err1 != nil || err2 != nil {
		_ = fc.Close()
		return
	}
	name := msg[1]
	rng := floor.Range{Lowest: low, Highest: high}
	if err := rng.Validate(); err != nil {
		_ = fc.Close()
		return
	}

	s.Registry.Register(name, rng, fc)
	defer s.Registry.Unregister(name)

	for {
		if ctx.Err() != nil {
			_ = fc.Close()
			return
		}
		if _, err := fc.RecvFrame(); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.Logger.Debug().Err(err).Str(xlog.FieldCarName, name).Str(xlog.FieldEvent, "car_session_ended").Msg("car session ended")
			}
			return
		}
		// STATUS (and anything else) is observational only; the mocked
		// dispatcher does not act on it.
	}
}

func (s *Server) handleCall(fc *frame.Conn, msg frame.Message) {
	if len(msg) != 3 {
		_ = fc.SendFrame(frame.Message{"UNAVAILABLE"})
		return
	}
	src, err1 := floor.Parse(msg[1])
	dst, err2 := floor.Parse(msg[2])
	if err1 != nil || err2 != nil {
		_ = fc.SendFrame(frame.Message{"UNAVAILABLE"})
		return
	}

	name, ok := s.Registry.Dispatch(src, dst)
	if !ok {
		_ = fc.SendFrame(frame.Message{"UNAVAILABLE"})
		return
	}
	if err := s.Registry.SendFloor(name, dst); err != nil {
		s.Logger.Warn().Err(err).Str(xlog.FieldCarName, name).Str(xlog.FieldEvent, "floor_send_failed").Msg("dispatch target vanished")
		_ = fc.SendFrame(frame.Message{"UNAVAILABLE"})
		return
	}
	_ = fc.SendFrame(frame.Message{"CAR", name})
}

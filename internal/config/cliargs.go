// SPDX-License-Identifier: MIT

// Package config validates the car/call/internal CLI argument surfaces
// and, for the controller, loads and hot-reloads the mocked fleet roster.
package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/kempy-elevator/fabric/internal/floor"
)

// ErrWrongArgCount is returned when a CLI is invoked with the wrong
// number of positional arguments.
var ErrWrongArgCount = errors.New("config: wrong number of arguments")

// ErrInvalidDelay is returned when delay_ms is not a strictly positive
// integer.
var ErrInvalidDelay = errors.New("config: delay must be a positive integer")

// ErrEqualFloors is returned when a call's source and destination match.
var ErrEqualFloors = errors.New("config: source and destination floors must differ")

// ErrLabelOutOfDomain is returned when a call's source or destination
// falls outside the label domain {B1..B99, 1..999}.
var ErrLabelOutOfDomain = errors.New("config: floor label outside B1..B99 / 1..999")

// ErrUnknownOp is returned when an internal op is not one of the known
// set.
var ErrUnknownOp = errors.New("config: unknown operation")

// CarArgs is the validated argument set for the car binary:
// `car <name> <low> <high> <delay_ms>`.
type CarArgs struct {
	Name  string
	Range floor.Range
	Delay int // milliseconds
}

// ParseCarArgs validates the car binary's four positional arguments.
func ParseCarArgs(args []string) (CarArgs, error) {
	if len(args) != 4 {
		return CarArgs{}, fmt.Errorf("%w: want 4 (name low high delay_ms), got %d", ErrWrongArgCount, len(args))
	}
	low, err := floor.Parse(args[1])
	if err != nil {
		return CarArgs{}, fmt.Errorf("config: lowest floor: %w", err)
	}
	high, err := floor.Parse(args[2])
	if err != nil {
		return CarArgs{}, fmt.Errorf("config: highest floor: %w", err)
	}
	r := floor.Range{Lowest: low, Highest: high}
	if err := r.Validate(); err != nil {
		return CarArgs{}, fmt.Errorf("config: floor range: %w", err)
	}
	delay, err := strconv.Atoi(args[3])
	if err != nil || delay <= 0 {
		return CarArgs{}, fmt.Errorf("%w: got %q", ErrInvalidDelay, args[3])
	}
	return CarArgs{Name: args[0], Range: r, Delay: delay}, nil
}

// CallArgs is the validated argument set for the call binary:
// `call <src> <dst>`.
type CallArgs struct {
	Src int
	Dst int
}

// ParseCallArgs validates the call binary's source/destination pair.
func ParseCallArgs(args []string) (CallArgs, error) {
	if len(args) != 2 {
		return CallArgs{}, fmt.Errorf("%w: want 2 (src dst), got %d", ErrWrongArgCount, len(args))
	}
	src, err := floor.Parse(args[0])
	if err != nil {
		return CallArgs{}, fmt.Errorf("config: source floor: %w", err)
	}
	if !floor.InDomain(src) {
		return CallArgs{}, fmt.Errorf("%w: %q", ErrLabelOutOfDomain, args[0])
	}
	dst, err := floor.Parse(args[1])
	if err != nil {
		return CallArgs{}, fmt.Errorf("config: destination floor: %w", err)
	}
	if !floor.InDomain(dst) {
		return CallArgs{}, fmt.Errorf("%w: %q", ErrLabelOutOfDomain, args[1])
	}
	if src == dst {
		return CallArgs{}, ErrEqualFloors
	}
	return CallArgs{Src: src, Dst: dst}, nil
}

// InternalOps are the operations the internal binary accepts.
var InternalOps = map[string]bool{
	"open":        true,
	"close":       true,
	"stop":        true,
	"service_on":  true,
	"service_off": true,
	"up":          true,
	"down":        true,
}

// InternalArgs is the validated argument set for the internal binary:
// `internal <name> <op>`.
type InternalArgs struct {
	Name string
	Op   string
}

// ParseInternalArgs validates the internal binary's car name and op.
func ParseInternalArgs(args []string) (InternalArgs, error) {
	if len(args) != 2 {
		return InternalArgs{}, fmt.Errorf("%w: want 2 (name op), got %d", ErrWrongArgCount, len(args))
	}
	if !InternalOps[args[1]] {
		return InternalArgs{}, fmt.Errorf("%w: %q", ErrUnknownOp, args[1])
	}
	return InternalArgs{Name: args[0], Op: args[1]}, nil
}

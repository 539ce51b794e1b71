// Command internal injects button presses and mode changes directly
// into a car's shared-memory control block.
package main

import (
	"fmt"
	"os"

	"github.com/kempy-elevator/fabric/internal/config"
	"github.com/kempy-elevator/fabric/internal/controlblock"
	"github.com/kempy-elevator/fabric/internal/floor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	parsed, err := config.ParseInternalArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	block, err := controlblock.Attach(parsed.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to access car %s.\n", parsed.Name)
		return 1
	}
	defer block.Close()

	if err := apply(block, parsed.Op); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func apply(block *controlblock.Block, op string) error {
	return block.Mutate(func(r *controlblock.Record) error {
		switch op {
		case "open":
			r.OpenButton = true
		case "close":
			r.CloseButton = true
		case "stop":
			r.EmergencyStop = true
			r.EmergencyMode = true
		case "service_on":
			r.IndividualServiceMode = true
			r.EmergencyMode = false
		case "service_off":
			r.IndividualServiceMode = false
		case "up":
			return step(r, floor.Up)
		case "down":
			return step(r, floor.Down)
		}
		return nil
	})
}

// step implements the up/down preconditions: individual service mode,
// status Closed, and not already mid-move. Any returned error aborts the
// enclosing Mutate, so a range violation leaves destination_floor
// untouched rather than requiring an explicit reset.
func step(r *controlblock.Record, dir floor.Direction) error {
	if !r.IndividualServiceMode {
		return fmt.Errorf("internal: up/down require individual_service_mode")
	}
	if r.Status != controlblock.Closed {
		return fmt.Errorf("internal: up/down require status Closed, got %s", r.Status)
	}
	if r.CurrentFloor != r.DestinationFloor {
		return fmt.Errorf("internal: car is already moving")
	}
	next, err := floor.Step(int(r.CurrentFloor), dir, r.Range())
	if err != nil {
		return fmt.Errorf("internal: %w", err)
	}
	r.DestinationFloor = int32(next)
	return nil
}

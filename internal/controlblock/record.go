// SPDX-License-Identifier: MIT

// Package controlblock implements the process-shared control block: a
// single fixed-layout record, mapped by name into every process that
// knows the car's name, guarded by a cross-process advisory lock.
//
// Go has no cross-process condition variable. The broadcast-on-change
// contract is emulated with a monotonically increasing version counter
// bumped under the lock on every mutation, and waiters poll: acquire,
// snapshot, release, check predicate, sleep briefly, repeat. Callers get a
// predicate-carrying wait helper rather than a raw wakeup, and are
// expected to revalidate their predicate after each wakeup since spurious
// wakeups are possible.
package controlblock

import (
	"encoding/binary"
	"fmt"

	"github.com/kempy-elevator/fabric/internal/floor"
)

// Status is the door/motion FSM phase.
type Status uint8

const (
	Closed Status = iota
	Opening
	Open
	Closing
	Between
)

func (s Status) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Opening:
		return "Opening"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Between:
		return "Between"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// ParseStatus parses a status token from a STATUS frame.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "Closed":
		return Closed, nil
	case "Opening":
		return Opening, nil
	case "Open":
		return Open, nil
	case "Closing":
		return Closing, nil
	case "Between":
		return Between, nil
	default:
		return 0, fmt.Errorf("controlblock: unknown status %q", s)
	}
}

// Record is the in-memory view of the control block's fields.
type Record struct {
	Version int64

	CurrentFloor     int32
	DestinationFloor int32
	Lowest           int32
	Highest          int32

	Status Status

	OpenButton            bool
	CloseButton           bool
	DoorObstruction       bool
	Overload              bool
	EmergencyStop         bool
	IndividualServiceMode bool
	EmergencyMode         bool

	MtimeUnixNano int64
}

// Range returns the car's configured floor range.
func (r Record) Range() floor.Range {
	return floor.Range{Lowest: int(r.Lowest), Highest: int(r.Highest)}
}

// recordSize is the fixed byte length of the marshalled record.
const recordSize = 48

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (r Record) marshal(buf []byte) {
	if len(buf) < recordSize {
		panic("controlblock: buffer too small for record")
	}
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.Version))
	binary.BigEndian.PutUint32(buf[8:12], uint32(r.CurrentFloor))
	binary.BigEndian.PutUint32(buf[12:16], uint32(r.DestinationFloor))
	binary.BigEndian.PutUint32(buf[16:20], uint32(r.Lowest))
	binary.BigEndian.PutUint32(buf[20:24], uint32(r.Highest))
	buf[24] = byte(r.Status)
	buf[25] = boolByte(r.OpenButton)
	buf[26] = boolByte(r.CloseButton)
	buf[27] = boolByte(r.DoorObstruction)
	buf[28] = boolByte(r.Overload)
	buf[29] = boolByte(r.EmergencyStop)
	buf[30] = boolByte(r.IndividualServiceMode)
	buf[31] = boolByte(r.EmergencyMode)
	binary.BigEndian.PutUint64(buf[32:40], uint64(r.MtimeUnixNano))
	// buf[40:48] reserved for future fields; no versioning header is
	// defined, so these padding bytes keep room to add one without
	// reshuffling offsets of an already-deployed layout.
}

func unmarshalRecord(buf []byte) Record {
	if len(buf) < recordSize {
		panic("controlblock: buffer too small for record")
	}
	return Record{
		Version:               int64(binary.BigEndian.Uint64(buf[0:8])),
		CurrentFloor:          int32(binary.BigEndian.Uint32(buf[8:12])),
		DestinationFloor:      int32(binary.BigEndian.Uint32(buf[12:16])),
		Lowest:                int32(binary.BigEndian.Uint32(buf[16:20])),
		Highest:               int32(binary.BigEndian.Uint32(buf[20:24])),
		Status:                Status(buf[24]),
		OpenButton:            buf[25] != 0,
		CloseButton:           buf[26] != 0,
		DoorObstruction:       buf[27] != 0,
		Overload:              buf[28] != 0,
		EmergencyStop:         buf[29] != 0,
		IndividualServiceMode: buf[30] != 0,
		EmergencyMode:         buf[31] != 0,
		MtimeUnixNano:         int64(binary.BigEndian.Uint64(buf[32:40])),
	}
}

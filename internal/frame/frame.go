// SPDX-License-Identifier: MIT

// Package frame implements the car-controller wire protocol: a big-endian
// 32-bit length prefix followed by that many bytes of ASCII payload, with
// no terminator. Messages are whitespace-separated tokens; no escaping is
// defined, so floor labels and car names must be token-safe.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// ErrFrameTooLarge is returned when a length prefix exceeds MaxFrameLen.
// The original protocol defines no such bound; this guards a malformed or
// adversarial peer from pinning a reader on an unbounded allocation.
var ErrFrameTooLarge = errors.New("frame: length prefix exceeds maximum")

// ErrShortFrame is returned when the peer closes the connection before a
// full length prefix or payload has been read.
var ErrShortFrame = errors.New("frame: short read, peer closed mid-frame")

// MaxFrameLen bounds a single frame's payload. Every frame defined in
// §6 is well under a kilobyte; 64 KiB leaves generous headroom.
const MaxFrameLen = 64 * 1024

// Message is a parsed, whitespace-tokenized frame payload.
type Message []string

// String re-joins the tokens with single spaces, the wire form.
func (m Message) String() string {
	return strings.Join(m, " ")
}

// Conn wraps a net.Conn with framed send/recv.
type Conn struct {
	nc net.Conn
}

// NewConn wraps an established connection for framed I/O.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// Raw returns the underlying net.Conn, e.g. to set deadlines or close it.
func (c *Conn) Raw() net.Conn {
	return c.nc
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// SendFrame writes a length-prefixed frame for msg, looping until every
// byte is written.
func (c *Conn) SendFrame(msg Message) error {
	return Send(c.nc, []byte(msg.String()))
}

// RecvFrame reads one length-prefixed frame and splits it into tokens.
func (c *Conn) RecvFrame() (Message, error) {
	payload, err := Recv(c.nc)
	if err != nil {
		return nil, err
	}
	return Message(strings.Fields(string(payload))), nil
}

// Send writes a length-prefixed frame for an arbitrary byte payload,
// looping until the header and body are fully written. Partial writes are
// normal on a stream socket and must not be treated as failures.
func Send(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLen {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if err := writeFull(w, header[:]); err != nil {
		return err
	}
	return writeFull(w, payload)
}

// Recv reads one length-prefixed frame, looping until the full header and
// then the full payload have been consumed. Peer-closed mid-frame is a
// fatal ErrShortFrame.
func Recv(r io.Reader) ([]byte, error) {
	var header [4]byte
	if err := readFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if err := readFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", ErrShortFrame, err)
		}
		return err
	}
	return nil
}

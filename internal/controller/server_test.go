package controller

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kempy-elevator/fabric/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T) (addr string, done <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan struct{})
	go func() { _ = s.Serve(ctx, ln); close(ch) }()
	t.Cleanup(func() {
		cancel()
		<-ch
	})
	return ln.Addr().String(), ch
}

func dial(t *testing.T, addr string) *frame.Conn {
	t.Helper()
	nc, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	return frame.NewConn(nc)
}

func TestCallDispatchesToRegisteredCar(t *testing.T) {
	addr, _ := startServer(t)

	car := dial(t, addr)
	require.NoError(t, car.SendFrame(frame.Message{"CAR", "A", "1", "10"}))

	caller := dial(t, addr)
	require.NoError(t, caller.SendFrame(frame.Message{"CALL", "2", "7"}))

	reply, err := caller.RecvFrame()
	require.NoError(t, err)
	assert.Equal(t, frame.Message{"CAR", "A"}, reply)

	floorMsg, err := car.RecvFrame()
	require.NoError(t, err)
	assert.Equal(t, frame.Message{"FLOOR", "7"}, floorMsg)
}

func TestCallUnavailableWithNoCoveringCar(t *testing.T) {
	addr, _ := startServer(t)

	car := dial(t, addr)
	require.NoError(t, car.SendFrame(frame.Message{"CAR", "A", "1", "5"}))

	caller := dial(t, addr)
	require.NoError(t, caller.SendFrame(frame.Message{"CALL", "2", "20"}))

	reply, err := caller.RecvFrame()
	require.NoError(t, err)
	assert.Equal(t, frame.Message{"UNAVAILABLE"}, reply)
}

func TestCallUnavailableWithNoCarsAtAll(t *testing.T) {
	addr, _ := startServer(t)

	caller := dial(t, addr)
	require.NoError(t, caller.SendFrame(frame.Message{"CALL", "2", "7"}))

	reply, err := caller.RecvFrame()
	require.NoError(t, err)
	assert.Equal(t, frame.Message{"UNAVAILABLE"}, reply)
}

func TestCarDisconnectRemovesItFromDispatch(t *testing.T) {
	addr, _ := startServer(t)

	car, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	fc := frame.NewConn(car)
	require.NoError(t, fc.SendFrame(frame.Message{"CAR", "A", "1", "10"}))
	require.NoError(t, car.Close())

	// Give the server a moment to observe the close and unregister.
	time.Sleep(50 * time.Millisecond)

	caller := dial(t, addr)
	require.NoError(t, caller.SendFrame(frame.Message{"CALL", "2", "7"}))
	reply, err := caller.RecvFrame()
	require.NoError(t, err)
	assert.Equal(t, frame.Message{"UNAVAILABLE"}, reply)
}

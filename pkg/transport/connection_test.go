package transport_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Mark-hil/chat-app/pkg/transport"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// The socket is never touched by Send and Close-before-Run, so these tests
// exercise the lifecycle surface without a live WebSocket.
func newIdleConnection(sendBuffer int) *transport.Connection {
	var wg sync.WaitGroup
	return transport.NewConnection(context.Background(), &wg, nil, transport.Config{
		SendBuffer: sendBuffer,
	}, newTestLogger())
}

func TestCloseUnblocksPendingSend(t *testing.T) {
	conn := newIdleConnection(1)

	var closes atomic.Int32
	conn.OnClose(func(uuid.UUID, error) {
		closes.Add(1)
	})

	// Fill the send buffer, then block a second Send behind it.
	conn.Send([]byte("first"))
	returned := make(chan struct{})
	go func() {
		conn.Send([]byte("second"))
		close(returned)
	}()

	conn.Close(nil)

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after Close")
	}
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done was not closed")
	}
	if got := closes.Load(); got != 1 {
		t.Errorf("expected the close handler to fire once, fired %d times", got)
	}
}

func TestConcurrentCloseFiresHandlerOnce(t *testing.T) {
	conn := newIdleConnection(1)

	var closes atomic.Int32
	conn.OnClose(func(uuid.UUID, error) {
		closes.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Close(nil)
		}()
	}
	wg.Wait()

	if got := closes.Load(); got != 1 {
		t.Errorf("expected exactly one close callback, got %d", got)
	}
	select {
	case <-conn.Done():
	default:
		t.Error("Done must be closed after Close")
	}
}

func TestSendAfterCloseReturnsImmediately(t *testing.T) {
	conn := newIdleConnection(1)
	conn.OnClose(func(uuid.UUID, error) {})
	conn.Close(nil)

	returned := make(chan struct{})
	go func() {
		conn.Send([]byte("late"))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Send on a closed connection must not block")
	}
}

func TestCloseReportsCauseToHandler(t *testing.T) {
	conn := newIdleConnection(1)

	cause := context.DeadlineExceeded
	var got error
	conn.OnClose(func(_ uuid.UUID, err error) {
		got = err
	})

	conn.Close(cause)
	conn.Close(nil) // later closes must not overwrite the original cause

	if got != cause {
		t.Errorf("close handler saw %v, want %v", got, cause)
	}
}

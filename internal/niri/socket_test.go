package niri

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/ned/internal/event"
)

// fakeNiri serves a single connection: it checks the request, writes reply,
// then writes each line in events and closes.
func fakeNiri(t *testing.T, reply string, events ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "niri.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		req, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil || req != requestEventStream+"\n" {
			return
		}
		if _, err := io.WriteString(conn, reply+"\n"); err != nil {
			return
		}
		for _, ev := range events {
			if _, err := io.WriteString(conn, ev+"\n"); err != nil {
				return
			}
		}
	}()

	return path
}

func TestConnectAndReadEvents(t *testing.T) {
	path := fakeNiri(t, `{"Ok":"Handled"}`,
		`{"WorkspaceActivated":{"id":2,"focused":true}}`,
		`{"Broken":1,"Twice":2}`,
		`{"WindowFocusChanged":{"id":null}}`,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sock, err := Connect(ctx, path)
	require.NoError(t, err)
	defer sock.Close()

	require.NoError(t, sock.Subscribe(ctx))

	ev, err := sock.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "WorkspaceActivated", ev.Name)
	assert.Equal(t, `{"WorkspaceActivated":{"id":2,"focused":true}}`, string(ev.Payload))

	// A malformed event does not poison the stream.
	_, err = sock.ReadEvent()
	require.Error(t, err)
	assert.True(t, errors.Is(err, event.ErrDecode))

	ev, err = sock.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "WindowFocusChanged", ev.Name)

	_, err = sock.ReadEvent()
	assert.Equal(t, io.EOF, err)
}

func TestSubscribeRejected(t *testing.T) {
	path := fakeNiri(t, `{"Err":"event stream unavailable"}`)

	sock, err := Connect(context.Background(), path)
	require.NoError(t, err)
	defer sock.Close()

	err = sock.Subscribe(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceConnect))
	assert.Contains(t, err.Error(), "event stream unavailable")
}

func TestSubscribeMalformedReply(t *testing.T) {
	path := fakeNiri(t, `not json`)

	sock, err := Connect(context.Background(), path)
	require.NoError(t, err)
	defer sock.Close()

	err = sock.Subscribe(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceConnect))
}

func TestConnectErrors(t *testing.T) {
	t.Run("unset path", func(t *testing.T) {
		_, err := Connect(context.Background(), "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSourceConnect))
		assert.Contains(t, err.Error(), "NIRI_SOCKET")
	})

	t.Run("missing socket", func(t *testing.T) {
		_, err := Connect(context.Background(), filepath.Join(t.TempDir(), "absent.sock"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSourceConnect))
	})
}

func TestCloseUnblocksReadEvent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	sock := newSocket(client)
	done := make(chan error, 1)
	go func() {
		_, err := sock.ReadEvent()
		done <- err
	}()

	require.NoError(t, sock.Close())

	select {
	case err := <-done:
		assert.Equal(t, io.EOF, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadEvent did not return after Close")
	}
}

// silentNiri accepts a connection, reads the request and never replies.
func silentNiri(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "niri.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	release := make(chan struct{})
	t.Cleanup(func() {
		close(release)
		ln.Close()
	})

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = bufio.NewReader(conn).ReadString('\n')
		<-release
	}()

	return path
}

func TestSubscribeCancelledWhileWaitingForReply(t *testing.T) {
	path := silentNiri(t)

	sock, err := Connect(context.Background(), path)
	require.NoError(t, err)
	defer sock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sock.Subscribe(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSourceConnect))
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancellation")
	}
}

// resetConn fails every read the way a peer reset does.
type resetConn struct {
	net.Conn
}

func (resetConn) Read([]byte) (int, error) {
	return 0, &net.OpError{Op: "read", Net: "unix", Err: os.NewSyscallError("read", syscall.ECONNRESET)}
}

func TestReadEventTreatsResetAsClosed(t *testing.T) {
	sock := newSocket(resetConn{})

	_, err := sock.ReadEvent()
	assert.Equal(t, io.EOF, err)
}

// Package niri is a minimal client for the niri compositor IPC socket.
//
// The socket speaks newline-delimited JSON. A client sends one request,
// reads one reply, and for the EventStream request keeps reading one event
// object per line until the connection closes.
package niri

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/mattjoyce/ned/internal/event"
)

var (
	// ErrSourceConnect is returned when the event stream cannot be established.
	ErrSourceConnect = errors.New("unable to connect to niri")

	// ErrRead is returned when reading from an established stream fails.
	ErrRead = errors.New("failed to read event")
)

// requestEventStream is the JSON encoding of niri's unit request variant.
const requestEventStream = `"EventStream"`

// Socket is a connection to the niri IPC socket.
type Socket struct {
	conn net.Conn
	r    *bufio.Reader
}

// Connect dials the niri socket at path.
func Connect(ctx context.Context, path string) (*Socket, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: NIRI_SOCKET is not set", ErrSourceConnect)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceConnect, err)
	}
	return newSocket(conn), nil
}

func newSocket(conn net.Conn) *Socket {
	return &Socket{conn: conn, r: bufio.NewReader(conn)}
}

// reply mirrors niri's Result<Response, String> encoding.
type reply struct {
	Ok  json.RawMessage `json:"Ok"`
	Err *string         `json:"Err"`
}

// Subscribe requests the event stream and checks the handshake reply.
// After it returns nil, ReadEvent yields events. Cancelling ctx aborts a
// handshake that niri never answers.
func (s *Socket) Subscribe(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Now())
	})
	line, err := s.handshake()
	if !stop() && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrSourceConnect, ctx.Err())
	}
	if err != nil {
		return err
	}

	var rep reply
	if err := json.Unmarshal(line, &rep); err != nil {
		return fmt.Errorf("%w: malformed reply: %v", ErrSourceConnect, err)
	}
	if rep.Err != nil {
		return fmt.Errorf("%w: %s", ErrSourceConnect, *rep.Err)
	}
	if len(rep.Ok) == 0 {
		return fmt.Errorf("%w: reply has neither Ok nor Err", ErrSourceConnect)
	}
	return nil
}

func (s *Socket) handshake() ([]byte, error) {
	if _, err := io.WriteString(s.conn, requestEventStream+"\n"); err != nil {
		return nil, fmt.Errorf("%w: send request: %v", ErrSourceConnect, err)
	}

	line, err := s.r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", ErrSourceConnect, err)
	}
	return line, nil
}

// closedStream reports whether err means the peer or we hung up.
func closedStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET)
}

// ReadEvent blocks until the next event arrives.
//
// It returns io.EOF once the stream is closed by either side. Malformed
// events are reported with an error wrapping event.ErrDecode; the stream
// stays usable afterwards.
func (s *Socket) ReadEvent() (event.Event, error) {
	line, err := s.r.ReadBytes('\n')
	if err != nil {
		if closedStream(err) {
			return event.Event{}, io.EOF
		}
		return event.Event{}, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return event.Decode(line)
}

// Close closes the connection, unblocking any pending ReadEvent.
func (s *Socket) Close() error {
	return s.conn.Close()
}

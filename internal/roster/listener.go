package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultPort is the chat service port, independent of the page port.
const DefaultPort = 4000

var (
	ErrNotOpen = errors.New("roster listener not open")
	ErrClosed  = errors.New("roster listener closed")
)

// ChatAddress builds the chat service URL from the host the page was served
// from. Any port in pageHost is replaced by port.
func ChatAddress(pageHost string, port int, path string, secure bool) string {
	host := pageHost
	if h, _, err := net.SplitHostPort(pageHost); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = DefaultPort
	}
	if path == "" {
		path = "/"
	}
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: path}
	return u.String()
}

// Options configures a Listener.
type Options struct {
	URL    string
	State  *State
	Logger *zap.Logger
	// OnUpdate is called after each roster replacement with the new size.
	OnUpdate         func(users int)
	HandshakeTimeout time.Duration
}

// Listener holds one connection to the chat service. It logs in under a name
// and mirrors user_update events into its State.
type Listener struct {
	url      string
	state    *State
	log      *zap.Logger
	onUpdate func(int)
	dialer   websocket.Dialer

	mu      sync.RWMutex
	conn    *websocket.Conn
	done    chan struct{}
	lost    chan struct{}
	closed  bool
	writeMu sync.Mutex
	wg      sync.WaitGroup
	nextID  atomic.Int64
}

// NewListener creates a listener; nothing is dialled until Open.
func NewListener(opts Options) *Listener {
	st := opts.State
	if st == nil {
		st = NewState()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Listener{
		url:      opts.URL,
		state:    st,
		log:      log.With(zap.String("chat_url", opts.URL)),
		onUpdate: opts.OnUpdate,
		dialer:   websocket.Dialer{HandshakeTimeout: timeout},
	}
}

// Done is closed when the current connection ends, whether the service
// dropped it or Close was called. It is nil before the first Open.
func (l *Listener) Done() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lost
}

// State returns the roster fed by this listener.
func (l *Listener) State() *State { return l.state }

// Open dials the chat service and starts handling user_update events. Calling
// Open on an open listener is a no-op; after the service dropped the
// connection Open dials again.
func (l *Listener) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.conn != nil {
		return nil
	}

	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	l.conn = conn
	l.done = make(chan struct{})
	l.lost = make(chan struct{})

	l.wg.Add(1)
	go l.handleMessages(conn, l.done, l.lost)

	l.log.Debug("chat connection open")
	return nil
}

// Login announces name to the chat service. The acknowledgement is only logged.
func (l *Listener) Login(ctx context.Context, name string) error {
	l.mu.RLock()
	conn, closed := l.conn, l.closed
	l.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotOpen
	}

	id := l.nextID.Add(1)
	frame, err := NewFrame(EventLogin, id, name)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	// zero deadline when ctx has none
	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send login: %w", err)
	}
	l.log.Info("chat login sent", zap.String("name", name), zap.Int64("id", id))
	return nil
}

// Close stops the reader, sends a close frame and releases the connection.
// It is safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conn := l.conn
	l.conn = nil
	if conn != nil {
		close(l.done)
	}
	l.mu.Unlock()

	if conn == nil {
		// a reader dropped by the service may still be releasing its conn
		l.wg.Wait()
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	cerr := conn.Close()
	l.wg.Wait()

	l.log.Debug("chat connection closed")
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) && !errors.Is(werr, net.ErrClosed) {
		return fmt.Errorf("close message: %w", werr)
	}
	if cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		return cerr
	}
	return nil
}

func (l *Listener) handleMessages(conn *websocket.Conn, done <-chan struct{}, lost chan<- struct{}) {
	defer l.wg.Done()
	defer close(lost)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				l.log.Warn("chat connection lost", zap.Error(err))
				l.release(conn)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			l.log.Debug("ignoring malformed chat frame", zap.Error(err))
			continue
		}
		l.dispatch(&frame)
	}
}

// release forgets conn after the service dropped it so the next Open redials.
func (l *Listener) release(conn *websocket.Conn) {
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()
	_ = conn.Close()
}

func (l *Listener) dispatch(frame *Frame) {
	switch frame.Event {
	case EventUserUpdate:
		users, err := frame.Users()
		if err != nil {
			l.log.Debug("ignoring bad roster", zap.Error(err))
			return
		}
		l.state.Replace(users)
		if l.onUpdate != nil {
			l.onUpdate(len(users))
		}
	case EventAck:
		var args []string
		for _, a := range frame.Args {
			args = append(args, string(a))
		}
		l.log.Info("chat login acknowledged", zap.Int64("id", frame.ID), zap.Strings("args", args))
	default:
		l.log.Debug("unhandled chat event", zap.String("event", frame.Event))
	}
}

package perfprobe

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/mailru/easyjson"
	"golang.org/x/exp/slices"
)

// Session is a protocol client bound to a single page target connection.
//
// Commands are correlated with their responses strictly by message id, so
// responses may arrive in any order. Events are fanned out to persistent
// listeners registered with On, and then handed to the oldest one-shot
// Waiter registered for the same method.
type Session struct {
	conn Transport

	// wmu serializes writes to conn.
	wmu sync.Mutex

	// mu protects everything below.
	mu sync.Mutex
	// next is the last used message id.
	next      int64
	pending   map[int64]chan *cdproto.Message
	listeners map[cdproto.MethodType][]*listener
	waiters   map[cdproto.MethodType][]*Waiter
	closed    bool

	closeOnce sync.Once
	done      chan struct{}

	// logging funcs
	logf, errf, dbgf func(string, ...interface{})
}

// make sure Session can run typed cdproto commands.
var _ cdp.Executor = (*Session)(nil)

type listener struct {
	fn func(*cdproto.Message)
}

// SessionOption is a Session option.
type SessionOption func(*Session)

// WithLogf is a Session option to specify a func to receive general logging.
func WithLogf(f func(string, ...interface{})) SessionOption {
	return func(s *Session) { s.logf = f }
}

// WithErrorf is a Session option to specify a func to receive error logging.
func WithErrorf(f func(string, ...interface{})) SessionOption {
	return func(s *Session) { s.errf = f }
}

// WithDebugf is a Session option to specify a func to receive debug logging
// (ie, protocol frames).
func WithDebugf(f func(string, ...interface{})) SessionOption {
	return func(s *Session) { s.dbgf = f }
}

func nopf(string, ...interface{}) {}

// NewSession creates a Session over the transport and starts reading from
// it. The Session owns the transport from then on.
func NewSession(t Transport, opts ...SessionOption) *Session {
	s := &Session{
		conn:      t,
		pending:   make(map[int64]chan *cdproto.Message),
		listeners: make(map[cdproto.MethodType][]*listener),
		waiters:   make(map[cdproto.MethodType][]*Waiter),
		done:      make(chan struct{}),
		logf:      nopf,
		errf:      nopf,
		dbgf:      nopf,
	}
	for _, o := range opts {
		o(s)
	}

	go s.run()
	return s
}

// nextID returns the next unused message id, wrapping around before int64
// overflow. Callers must hold mu.
func (s *Session) nextID() int64 {
	for {
		if s.next == math.MaxInt64 {
			s.next = 0
		}
		s.next++
		if _, inUse := s.pending[s.next]; !inUse {
			return s.next
		}
	}
}

// Send sends the command and blocks until the matching response arrives,
// returning its raw result. A protocol error response is returned as a
// *cdproto.Error.
func (s *Session) Send(ctx context.Context, method string, params easyjson.Marshaler) (easyjson.RawMessage, error) {
	var buf []byte
	if params != nil {
		var err error
		if buf, err = easyjson.Marshal(params); err != nil {
			return nil, err
		}
	}

	ch := make(chan *cdproto.Message, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrChannelClosed
	}
	id := s.nextID()
	s.pending[id] = ch
	s.mu.Unlock()

	s.dbgf("-> %d %s %s", id, method, buf)
	s.wmu.Lock()
	err := s.conn.Write(&cdproto.Message{
		ID:     id,
		Method: cdproto.MethodType(method),
		Params: buf,
	})
	s.wmu.Unlock()
	if err != nil {
		s.forget(id)
		return nil, err
	}

	select {
	case msg, ok := <-ch:
		switch {
		case !ok:
			return nil, ErrChannelClosed
		case msg.Error != nil:
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-ctx.Done():
		s.forget(id)
		return nil, ctx.Err()
	}
}

// Execute satisfies cdp.Executor, so typed commands can be run with
// cdp.WithExecutor(ctx, s).
func (s *Session) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	result, err := s.Send(ctx, method, params)
	if err != nil {
		return err
	}
	if res != nil && len(result) != 0 {
		return easyjson.Unmarshal(result, res)
	}
	return nil
}

func (s *Session) forget(id int64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// On registers a persistent listener for the event method. The listener runs
// on the Session's read goroutine and must not block or call Send. The
// returned func removes the listener.
func (s *Session) On(method cdproto.MethodType, fn func(*cdproto.Message)) func() {
	l := &listener{fn: fn}
	s.mu.Lock()
	s.listeners[method] = append(s.listeners[method], l)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		ls := s.listeners[method]
		if i := slices.Index(ls, l); i != -1 {
			s.listeners[method] = slices.Delete(ls, i, i+1)
		}
	}
}

// Waiter is a one-shot subscription to the next occurrence of an event.
type Waiter struct {
	s        *Session
	method   cdproto.MethodType
	deadline time.Time
	ch       chan *cdproto.Message
}

// WaitFor registers a one-shot waiter for the next method event. The waiter
// is armed immediately, so it can be registered before sending the command
// that triggers the event; its timeout also starts counting immediately.
func (s *Session) WaitFor(method cdproto.MethodType, timeout time.Duration) *Waiter {
	w := &Waiter{
		s:        s,
		method:   method,
		deadline: time.Now().Add(timeout),
		ch:       make(chan *cdproto.Message, 1),
	}

	s.mu.Lock()
	if s.closed {
		close(w.ch)
	} else {
		s.waiters[method] = append(s.waiters[method], w)
	}
	s.mu.Unlock()

	return w
}

// Wait blocks until the event arrives, returning ErrWaitTimeout once the
// waiter's timeout elapses. A timed out waiter is unregistered, so a later
// event of the same method goes to the next waiter instead.
func (w *Waiter) Wait(ctx context.Context) (*cdproto.Message, error) {
	timer := time.NewTimer(time.Until(w.deadline))
	defer timer.Stop()

	select {
	case msg, ok := <-w.ch:
		if !ok {
			return nil, ErrChannelClosed
		}
		return msg, nil
	case <-timer.C:
		return w.abandon(ErrWaitTimeout)
	case <-ctx.Done():
		return w.abandon(ctx.Err())
	}
}

// Cancel unregisters the waiter if it has not fired yet.
func (w *Waiter) Cancel() {
	w.s.removeWaiter(w)
}

func (w *Waiter) abandon(err error) (*cdproto.Message, error) {
	if w.s.removeWaiter(w) {
		return nil, err
	}
	// the dispatcher (or Close) got to it first, so the outcome is already
	// sitting in the channel.
	msg, ok := <-w.ch
	if !ok {
		return nil, ErrChannelClosed
	}
	return msg, nil
}

// removeWaiter reports whether w was still queued.
func (s *Session) removeWaiter(w *Waiter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.waiters[w.method]
	i := slices.Index(q, w)
	if i == -1 {
		return false
	}
	if q = slices.Delete(q, i, i+1); len(q) == 0 {
		delete(s.waiters, w.method)
	} else {
		s.waiters[w.method] = q
	}
	return true
}

func (s *Session) run() {
	defer s.shutdown()

	for {
		msg, err := s.conn.Read()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.errf("could not read message: %v", err)
			}
			return
		}

		switch {
		case msg.ID != 0:
			s.resolve(msg)
		case msg.Method != "":
			s.dispatch(msg)
		default:
			s.errf("ignoring malformed incoming message (missing id or method): %#v", msg)
		}
	}
}

func (s *Session) resolve(msg *cdproto.Message) {
	s.dbgf("<- %d %s", msg.ID, msg.Result)

	s.mu.Lock()
	ch, ok := s.pending[msg.ID]
	delete(s.pending, msg.ID)
	s.mu.Unlock()

	if !ok {
		s.dbgf("dropping response for unknown id %d", msg.ID)
		return
	}
	ch <- msg
}

func (s *Session) dispatch(msg *cdproto.Message) {
	s.dbgf("<- %s %s", msg.Method, msg.Params)

	s.mu.Lock()
	ls := slices.Clone(s.listeners[msg.Method])
	s.mu.Unlock()

	for _, l := range ls {
		l.fn(msg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.waiters[msg.Method]
	if len(q) == 0 {
		return
	}
	w := q[0]
	if len(q) == 1 {
		delete(s.waiters, msg.Method)
	} else {
		s.waiters[msg.Method] = q[1:]
	}
	w.ch <- msg
}

// shutdown fails every pending call and waiter with ErrChannelClosed.
func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	for method, q := range s.waiters {
		for _, w := range q {
			close(w.ch)
		}
		delete(s.waiters, method)
	}
	close(s.done)
}

// Done returns a channel that is closed once the Session stops reading,
// either because it was closed or because the transport failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close closes the Session and its transport. It is idempotent and never
// fails: transport close errors are only logged.
func (s *Session) Close() error {
	s.shutdown()
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil {
			s.dbgf("could not close transport: %v", err)
		}
	})
	return nil
}

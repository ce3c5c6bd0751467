package pjlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"
	"github.com/joomcode/errorx"
)

// DefaultIdleTimeout is how long a Connection waits after its last response
// before closing itself. PJLink does not mandate this value; it is a
// library policy and may be overridden per Connection.
const DefaultIdleTimeout = 20 * time.Second

type connState int32

const (
	stateNew connState = iota
	stateConnecting
	stateAuthenticating
	stateReady
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateNew:
		return "New"
	case stateConnecting:
		return "Connecting"
	case stateAuthenticating:
		return "Authenticating"
	case stateReady:
		return "Ready"
	case stateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// connectionObserver is implemented by Projector. All methods are invoked
// from the Connection's Pool worker goroutine.
type connectionObserver interface {
	response(cmd *Command)
	connectionClosed(c *Connection)
}

// Connection is one TCP session to one projector. All of its mutable
// state - pending queue, socket, idle timer, state machine - is touched
// only from jobs posted to its Pool, so none of it needs its own mutex.
// The blocking socket syscalls run on dedicated goroutines that hand
// control back to the Pool via posted closures.
type Connection struct {
	pool     *Pool
	addr     netip.Addr
	port     int
	observer connectionObserver

	idleTimeout time.Duration

	// Fields below are only ever read or written from the Pool's worker
	// goroutine.
	state       connState
	netConn     net.Conn
	reader      *bufio.Reader
	pending     []*Command
	idleTimer   *time.Timer
	connectedAt time.Time

	closeOnce atomic.Bool
}

// NewConnection constructs a Connection for addr, owned by pool, reporting
// to observer. idleTimeout of 0 selects DefaultIdleTimeout.
func NewConnection(pool *Pool, addr netip.Addr, observer connectionObserver, idleTimeout time.Duration) *Connection {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Connection{
		pool:        pool,
		addr:        addr,
		port:        Port,
		observer:    observer,
		idleTimeout: idleTimeout,
		state:       stateNew,
	}
}

type connectResult struct {
	ok  bool
	err error
}

// Connect dials the projector and runs the PJLink handshake. It resolves
// true only if the socket opened and the projector's banner was
// "PJLINK 0". ctx governs only how long the caller is willing to wait for
// the result; it does not cancel an in-flight dial or auth read.
func (c *Connection) Connect(ctx context.Context) (bool, error) {
	resultCh := make(chan connectResult, 1)
	if err := c.pool.post(func() { c.beginConnect(resultCh) }); err != nil {
		return false, err
	}
	select {
	case r := <-resultCh:
		return r.ok, r.err
	case <-ctx.Done():
		return false, errtrace.Wrap(ctx.Err())
	}
}

// beginConnect runs on the Pool worker.
func (c *Connection) beginConnect(resultCh chan connectResult) {
	switch c.state {
	case stateReady:
		resultCh <- connectResult{ok: true}
		return
	case stateClosed:
		resultCh <- connectResult{err: ErrClosed}
		return
	case stateConnecting, stateAuthenticating:
		resultCh <- connectResult{err: fmt.Errorf("%w: connect already in progress", Error)}
		return
	}
	c.state = stateConnecting
	go c.doConnect(resultCh)
}

// doConnect runs on a dedicated goroutine, never on the Pool worker: the
// dial and the auth-line read both block on socket I/O that must not stall
// every other Connection sharing this Pool.
func (c *Connection) doConnect(resultCh chan connectResult) {
	endpoint := net.JoinHostPort(c.addr.String(), fmt.Sprintf("%d", c.port))
	netConn, err := net.Dial("tcp", endpoint)
	if err != nil {
		_ = c.pool.post(func() { c.finishConnect(resultCh, nil, nil, errorx.EnsureStackTrace(err)) })
		return
	}
	if err := tuneTCP(netConn); err != nil {
		logger.Printf("tuneTCP %s: %v", endpoint, err)
	}

	reader := bufio.NewReaderSize(netConn, maxFrame)
	banner, err := readFrame(reader)
	if err != nil {
		_ = netConn.Close()
		_ = c.pool.post(func() { c.finishConnect(resultCh, nil, nil, errtrace.Wrap(err)) })
		return
	}
	if authErr := checkAuthBanner(banner); authErr != nil {
		_ = netConn.Close()
		_ = c.pool.post(func() { c.finishConnect(resultCh, nil, nil, authErr) })
		return
	}
	_ = c.pool.post(func() { c.finishConnect(resultCh, netConn, reader, nil) })
}

// checkAuthBanner validates the projector's first line. PJLink 0 means no
// authentication; anything else - including a well-formed "PJLINK 1
// <seed>" password challenge - is rejected, since this library never
// attempts password authentication.
func checkAuthBanner(banner []byte) error {
	line := string(banner)
	if !strings.HasPrefix(strings.ToUpper(line), authHeader) {
		return errorx.EnsureStackTrace(fmt.Errorf("%w: unexpected banner %q", ErrAuthRejected, line))
	}
	if !strings.HasPrefix(line, authDisabled) {
		return errorx.EnsureStackTrace(fmt.Errorf(
			"%w: projector requires password authentication, disable it on the device", ErrAuthRejected))
	}
	return nil
}

// finishConnect runs on the Pool worker.
func (c *Connection) finishConnect(resultCh chan connectResult, netConn net.Conn, reader *bufio.Reader, err error) {
	if err != nil {
		c.state = stateClosed
		for _, cmd := range c.pending {
			cmd.setResponse(nil, errorx.EnsureStackTrace(ErrClosed))
		}
		c.pending = nil
		resultCh <- connectResult{err: err}
		c.notifyClosed()
		return
	}
	if c.state == stateClosed {
		// Disconnect ran while doConnect was still dialing/authenticating.
		// Don't resurrect a connection that's already torn down.
		_ = netConn.Close()
		resultCh <- connectResult{err: ErrClosed}
		return
	}
	c.netConn = netConn
	c.reader = reader
	c.state = stateReady
	c.connectedAt = time.Now()
	c.pool.incrConnections()
	c.armIdleTimer()
	go c.readLoop(reader)
	if len(c.pending) > 0 {
		c.writeHeadLocked()
	}
	resultCh <- connectResult{ok: true}
}

// Disconnect closes the Connection and blocks until teardown completes.
// Idempotent: disconnecting an already-closed Connection is a no-op.
func (c *Connection) Disconnect() error {
	return c.pool.postSync(func() { c.closeLocked(nil) })
}

// Enqueue appends cmd to the pending queue. If the Connection is Ready and
// the queue was empty, this also starts writing cmd immediately.
func (c *Connection) Enqueue(cmd *Command) error {
	return c.pool.post(func() { c.enqueueLocked(cmd) })
}

func (c *Connection) enqueueLocked(cmd *Command) {
	if c.state == stateClosed {
		cmd.setResponse(nil, errorx.EnsureStackTrace(ErrClosed))
		return
	}
	c.pending = append(c.pending, cmd)
	if c.state == stateReady && len(c.pending) == 1 {
		c.writeHeadLocked()
	}
}

// writeHeadLocked starts writing the command at the head of the pending
// queue. Only one command is ever in flight: a write is issued from
// enqueueLocked (queue was empty), from finishConnect once authenticated,
// or from handleFrame once the current head's response has been stored.
func (c *Connection) writeHeadLocked() {
	head := c.pending[0]
	netConn := c.netConn
	go func() {
		_, err := netConn.Write(head.wire)
		if err != nil {
			_ = c.pool.post(func() { c.handleWriteError(errtrace.Wrap(err)) })
		}
	}()
}

func (c *Connection) handleWriteError(err error) {
	if c.state == stateClosed {
		return
	}
	c.closeLocked(err)
}

// readLoop runs on a dedicated goroutine for the Connection's lifetime; it
// never touches Connection fields directly, only through posted closures.
func (c *Connection) readLoop(reader *bufio.Reader) {
	for {
		frame, err := readFrame(reader)
		if err != nil {
			_ = c.pool.post(func() { c.handleReadError(err) })
			return
		}
		_ = c.pool.post(func() { c.handleFrame(frame) })
	}
}

func (c *Connection) handleReadError(err error) {
	if c.state == stateClosed {
		// We caused this by closing the socket ourselves; nothing to log.
		return
	}
	if errors.Is(err, net.ErrClosed) {
		c.closeLocked(nil)
		return
	}
	c.closeLocked(err)
}

// handleFrame pairs frame with the head of the pending queue, per PJLink's
// strict one-in-flight ordering: a response always belongs to whatever
// command is currently at the head.
func (c *Connection) handleFrame(frame []byte) {
	if len(c.pending) == 0 {
		logger.Printf("unsolicited frame from %s: %q", c.addr, frame)
		return
	}
	head := c.pending[0]
	head.setResponse(frame, nil)
	c.observer.response(head)
	c.armIdleTimer()
	c.pending = c.pending[1:]
	if len(c.pending) > 0 {
		c.writeHeadLocked()
	}
}

func (c *Connection) armIdleTimer() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.idleTimeout, func() {
		_ = c.pool.post(func() { c.onIdleTimeout() })
	})
}

func (c *Connection) onIdleTimeout() {
	if c.state == stateClosed {
		return
	}
	c.closeLocked(nil)
}

// closeLocked tears the Connection down. reason is nil for a deliberate
// disconnect or idle timeout; non-nil for an I/O failure. Any commands
// still queued are failed with ErrClosed and dropped without a response
// signal - callers notice their absence, per the package's drop policy.
func (c *Connection) closeLocked(reason error) {
	if c.state == stateClosed {
		return
	}
	if reason != nil {
		logger.Printf("closing %s: %v", c.addr, reason)
	}
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	if c.netConn != nil {
		if err := c.netConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Printf("close %s: %v", c.addr, err)
		}
		c.pool.decrConnections()
	}
	wasReady := c.state == stateReady
	c.state = stateClosed

	for _, cmd := range c.pending {
		cmd.setResponse(nil, errorx.EnsureStackTrace(ErrClosed))
	}
	c.pending = nil

	if wasReady {
		c.notifyClosed()
	}
}

func (c *Connection) notifyClosed() {
	if !c.closeOnce.CompareAndSwap(false, true) {
		return
	}
	c.observer.connectionClosed(c)
}

// Connected reports whether the Connection is authenticated and ready to
// carry commands.
func (c *Connection) Connected() bool {
	var ready bool
	_ = c.pool.postSync(func() { ready = c.state == stateReady })
	return ready
}

// Session reports how long ago the Connection became Ready; it keeps
// counting after the Connection closes. Zero if it never reached Ready.
func (c *Connection) Session() time.Duration {
	var since time.Time
	_ = c.pool.postSync(func() { since = c.connectedAt })
	if since.IsZero() {
		return 0
	}
	return time.Since(since)
}

// readFrame reads bytes up to and including the next terminator and
// returns them with the terminator stripped.
func readFrame(reader *bufio.Reader) ([]byte, error) {
	line, err := reader.ReadBytes(terminator)
	if err != nil {
		return nil, err
	}
	return line[:len(line)-1], nil
}

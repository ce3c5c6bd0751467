package pjlink

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/joomcode/errorx"
)

// StartTimeout bounds how long Start waits for a synchronous connect when
// Config.ConnectOnStart is set.
const StartTimeout = 10 * time.Second

// StopTimeout bounds how long Stop waits for the current Connection to
// tear down.
const StopTimeout = 10 * time.Second

// Config describes one projector endpoint and how its Projector handle
// should behave at Start.
type Config struct {
	// ID is a stable caller-assigned identifier, used only in logging.
	ID string
	// Address is the projector's IPv4 or IPv6 address. Parsed once at
	// NewProjector; an invalid address fails fast.
	Address netip.Addr
	// ConnectOnStart, if true, makes Start synchronously connect and
	// authenticate (or fail) instead of deferring to the first Send.
	ConnectOnStart bool
	// AllowFailure, if true, makes Start log and return success even when
	// ConnectOnStart is set and the synchronous connect fails.
	AllowFailure bool
	// IdleTimeout overrides DefaultIdleTimeout for Connections opened by
	// this Projector. Zero selects the default.
	IdleTimeout time.Duration
}

// ResponseHandler is called once per completed Command, on the Pool
// worker goroutine that owns the Connection it arrived on.
type ResponseHandler func(cmd *Command)

// Projector is the caller-facing handle for one projector: an address
// plus a reference to the shared Pool. It lazily creates and recreates its
// Connection on demand and fans out completed commands to subscribers.
type Projector struct {
	cfg  Config
	pool *Pool

	mx      sync.Mutex
	current *Connection

	mxHandlers sync.Mutex
	handlers   []ResponseHandler

	// port overrides the PJLink well-known port for Connections created by
	// this Projector. Zero selects Port. Only ever set by tests that can't
	// bind a fake projector to the privileged default port.
	port int
}

// NewProjector validates cfg and returns a handle backed by pool. Nothing
// is connected yet.
func NewProjector(cfg Config, pool *Pool) (*Projector, error) {
	if !cfg.Address.IsValid() {
		return nil, errorx.EnsureStackTrace(fmt.Errorf("%w: invalid address for projector %q", ErrConfig, cfg.ID))
	}
	if pool == nil {
		return nil, errorx.EnsureStackTrace(fmt.Errorf("%w: nil pool for projector %q", ErrConfig, cfg.ID))
	}
	return &Projector{cfg: cfg, pool: pool}, nil
}

// OnResponse subscribes handler to every completed command on this
// projector. handler may be called from any Connection's Pool worker
// goroutine; it must not block or it will stall that worker.
func (p *Projector) OnResponse(handler ResponseHandler) {
	p.mxHandlers.Lock()
	defer p.mxHandlers.Unlock()
	p.handlers = append(p.handlers, handler)
}

func (p *Projector) emit(cmd *Command) {
	p.mxHandlers.Lock()
	handlers := append([]ResponseHandler(nil), p.handlers...)
	p.mxHandlers.Unlock()

	for _, h := range handlers {
		h(cmd)
	}
}

// response implements connectionObserver.
func (p *Projector) response(cmd *Command) { p.emit(cmd) }

// connectionClosed implements connectionObserver.
func (p *Projector) connectionClosed(c *Connection) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.current == c {
		p.current = nil
	}
}

// getOrCreate returns the current Connection, creating one if absent.
// Newly created Connections are told to connect but the caller is not
// blocked on the outcome unless wait is true.
func (p *Projector) getOrCreate(ctx context.Context, wait bool) (*Connection, error) {
	p.mx.Lock()
	if p.current != nil {
		conn := p.current
		p.mx.Unlock()
		return conn, nil
	}
	conn := NewConnection(p.pool, p.cfg.Address, p, p.cfg.IdleTimeout)
	if p.port != 0 {
		conn.port = p.port
	}
	p.current = conn
	p.mx.Unlock()

	if !wait {
		go func() {
			if _, err := conn.Connect(context.Background()); err != nil {
				logger.Printf("%s: connect failed: %v", p.cfg.ID, err)
			}
		}()
		return conn, nil
	}

	ok, err := conn.Connect(ctx)
	if err != nil {
		return conn, err
	}
	if !ok {
		return conn, errorx.EnsureStackTrace(fmt.Errorf("%w: %s did not authenticate", ErrAuthRejected, p.cfg.ID))
	}
	return conn, nil
}

// Start prepares the Projector. If Config.ConnectOnStart is set, Start
// blocks up to StartTimeout connecting and authenticating; a failure is
// returned unless Config.AllowFailure is set, in which case it is logged
// and Start still returns nil. If ConnectOnStart is not set, Start returns
// immediately without opening a socket.
func (p *Projector) Start() error {
	if !p.cfg.ConnectOnStart {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), StartTimeout)
	defer cancel()

	_, err := p.getOrCreate(ctx, true)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		err = errorx.EnsureStackTrace(fmt.Errorf("%w: %s: %v", ErrStartTimeout, p.cfg.ID, err))
	}
	if p.cfg.AllowFailure {
		logger.Printf("%s: start failed, continuing because AllowFailure is set: %v", p.cfg.ID, err)
		return nil
	}
	return err
}

// Stop disconnects the current Connection, if any, and waits up to
// StopTimeout for teardown to complete. Stopping a Projector that was
// never started, or has no live Connection, is a no-op.
func (p *Projector) Stop() error {
	p.mx.Lock()
	conn := p.current
	p.mx.Unlock()
	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- conn.Disconnect() }()

	select {
	case err := <-done:
		return err
	case <-time.After(StopTimeout):
		logger.Printf("%s: stop timed out after %s", p.cfg.ID, StopTimeout)
		return nil
	}
}

// Send enqueues cmd on this projector's Connection, creating one if
// necessary. It returns as soon as the command is queued; the command's
// response arrives later via OnResponse (or by polling cmd once a response
// handler confirms delivery).
func (p *Projector) Send(cmd *Command) error {
	conn, err := p.getOrCreate(context.Background(), false)
	if err != nil {
		return err
	}
	return conn.Enqueue(cmd)
}

// Set builds a raw command for body/value and sends it.
func (p *Projector) Set(body, value string) (*Command, error) {
	cmd, err := NewCommand(body, value)
	if err != nil {
		return nil, err
	}
	return cmd, p.Send(cmd)
}

// Get builds a raw query for body and sends it.
func (p *Projector) Get(body string) (*Command, error) {
	cmd, err := NewCommand(body, queryValue)
	if err != nil {
		return nil, err
	}
	return cmd, p.Send(cmd)
}

// PowerOn sends a SetPower(true) command.
func (p *Projector) PowerOn() (*Command, error) { return p.sendTyped(SetPower(true)) }

// PowerOff sends a SetPower(false) command.
func (p *Projector) PowerOff() (*Command, error) { return p.sendTyped(SetPower(false)) }

// MuteOn sends a SetAVMute(true) command.
func (p *Projector) MuteOn() (*Command, error) { return p.sendTyped(SetAVMute(true)) }

// MuteOff sends a SetAVMute(false) command.
func (p *Projector) MuteOff() (*Command, error) { return p.sendTyped(SetAVMute(false)) }

func (p *Projector) sendTyped(cmd *Command, err error) (*Command, error) {
	if err != nil {
		return nil, err
	}
	return cmd, p.Send(cmd)
}

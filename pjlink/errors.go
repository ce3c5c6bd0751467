package pjlink

import (
	"errors"
	"fmt"

	"github.com/joomcode/errorx"
)

// Error is the base of every error this package returns. Callers branch on
// error class with errors.Is against the sentinels below.
var Error = errors.New("pjlink")

var (
	// ErrInvalidArgument is returned when a command is constructed with an
	// out-of-range parameter, or the resulting wire frame would not be
	// shorter than maxFrame.
	ErrInvalidArgument = fmt.Errorf("%w: invalid argument", Error)

	// ErrConfig is returned by NewProjector/Start for a malformed address
	// or a missing pool.
	ErrConfig = fmt.Errorf("%w: invalid configuration", Error)

	// ErrStartTimeout is returned by Projector.Start when ConnectOnStart is
	// set and the handshake does not complete within StartTimeout.
	ErrStartTimeout = fmt.Errorf("%w: start timed out", Error)

	// ErrAuthRejected covers both an unexpected authentication banner and a
	// projector that requires password authentication. Fatal for the
	// session: this library never attempts password authentication.
	ErrAuthRejected = fmt.Errorf("%w: authentication rejected", Error)

	// ErrClosed is returned by operations attempted against a Connection or
	// Pool that has already been torn down.
	ErrClosed = fmt.Errorf("%w: connection closed", Error)

	// ErrProtocol is returned when a response payload does not match the
	// shape its command expects (missing '=', wrong field count, non-numeric
	// lamp hours). It is never returned for a caller's own bad input; see
	// ErrInvalidArgument for that.
	ErrProtocol = fmt.Errorf("%w: malformed response", Error)
)

// errClosedf wraps ErrClosed with additional context, with a stack trace
// attached at the call site.
func errClosedf(format string, args ...any) error {
	return errorx.EnsureStackTrace(fmt.Errorf("%w: "+format, append([]any{ErrClosed}, args...)...))
}

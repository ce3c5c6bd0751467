package pjlink

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/joomcode/errorx"
)

// CommandKind discriminates the typed decode a Command supports. Plain
// Set/Get calls that don't need typed decoding use KindRaw.
type CommandKind int

const (
	KindRaw CommandKind = iota
	KindSetPower
	KindSetAVMute
	KindSetInput
	KindGetPower
	KindGetAVMute
	KindGetError
	KindGetLamp
)

// Command is a single PJLink request/response pair. A Command is mutable
// only through setResponse, called once by its Connection with either the
// response frame or the error that ended the command; everything else
// about it is fixed at construction.
type Command struct {
	kind CommandKind
	body string
	wire []byte

	response []byte
	err      error

	// CorrelationID identifies this command across log lines spanning its
	// send and its eventual response, independent of connection or
	// projector identity.
	CorrelationID uuid.UUID
}

// NewCommand builds a raw Command for an arbitrary body/value pair not
// covered by one of the typed constructors below. value may be queryValue
// ("?") for a query.
func NewCommand(body, value string) (*Command, error) {
	wire, err := buildFrame(body, value)
	if err != nil {
		return nil, err
	}
	return &Command{
		kind:          KindRaw,
		body:          body,
		wire:          wire,
		CorrelationID: uuid.New(),
	}, nil
}

func newTypedCommand(kind CommandKind, body, value string) (*Command, error) {
	cmd, err := NewCommand(body, value)
	if err != nil {
		return nil, err
	}
	cmd.kind = kind
	return cmd, nil
}

// SetPower builds a POWR set command. on selects powering the projector on
// (true) or off (false).
func SetPower(on bool) (*Command, error) {
	value := "0"
	if on {
		value = "1"
	}
	return newTypedCommand(KindSetPower, bodyPower, value)
}

// SetAVMute builds an AVMT set command muting both audio and video.
func SetAVMute(mute bool) (*Command, error) {
	value := "31"
	if !mute {
		value = "30"
	}
	return newTypedCommand(KindSetAVMute, bodyAVMute, value)
}

// SetInput builds an INPT set command selecting input class t, channel
// number (1-9).
func SetInput(t InputType, number int) (*Command, error) {
	value, err := buildInputValue(t, number)
	if err != nil {
		return nil, err
	}
	return newTypedCommand(KindSetInput, bodyInput, value)
}

// GetPower builds a POWR query.
func GetPower() (*Command, error) { return newTypedCommand(KindGetPower, bodyPower, queryValue) }

// GetAVMute builds an AVMT query.
func GetAVMute() (*Command, error) { return newTypedCommand(KindGetAVMute, bodyAVMute, queryValue) }

// GetError builds an ERST query.
func GetError() (*Command, error) {
	return newTypedCommand(KindGetError, bodyErrorStatus, queryValue)
}

// GetLamp builds a LAMP query.
func GetLamp() (*Command, error) { return newTypedCommand(KindGetLamp, bodyLamp, queryValue) }

func (c *Command) Body() string { return c.body }

func (c *Command) Wire() []byte { return c.wire }

// WireLen reports the length of Wire(), without allocating a copy to
// measure it.
func (c *Command) WireLen() int { return len(c.wire) }

// HasResponse reports whether a response frame or a terminal error has
// been recorded for this command. False means it is still in flight.
func (c *Command) HasResponse() bool { return c.response != nil || c.err != nil }

// setResponse records the raw response frame (or an error, if the
// connection failed before a response arrived) against this Command. It
// must be called at most once.
func (c *Command) setResponse(resp []byte, err error) {
	c.response = resp
	c.err = err
}

// Err returns the error, if any, that prevented this command from
// completing normally: ErrClosed when its Connection was already closed
// at enqueue, or closed before a response arrived. A defined ERRx response from the projector is not itself an
// error here; inspect Code() for that.
func (c *Command) Err() error { return c.err }

// Raw returns the unparsed response frame, e.g. "%1POWR=OK".
func (c *Command) Raw() []byte { return c.response }

// Payload returns the response frame's payload after "=", e.g. "OK" for a
// "%1POWR=OK" frame. ok is false if no response has been recorded yet or
// the frame has no "=".
func (c *Command) Payload() (string, bool) { return responsePayload(c.response) }

func (c *Command) Code() ResponseCode { return responseCode(c.response) }

func (c *Command) Ok() bool { return c.err == nil && c.Code() == Ok }

// DecodeSetResult reports whether a Set command's projector-side result
// was "OK". Valid for KindSetPower, KindSetAVMute, KindSetInput.
func (c *Command) DecodeSetResult() (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return decodeSetResult(c.response), nil
}

// DecodePowerStatus decodes a GetPower response. Valid for KindGetPower.
func (c *Command) DecodePowerStatus() (PowerStatus, error) {
	if c.err != nil {
		return PowerUnknown, c.err
	}
	return decodePowerStatus(c.response), nil
}

// DecodeAVMuteStatus decodes a GetAVMute response. Valid for KindGetAVMute.
func (c *Command) DecodeAVMuteStatus() (AVMuteStatus, error) {
	if c.err != nil {
		return AVMuteUnknown, c.err
	}
	return decodeAVMuteStatus(c.response), nil
}

// DecodeErrorStatus decodes a GetError response. Valid for KindGetError.
func (c *Command) DecodeErrorStatus() (ErrorStatus, error) {
	if c.err != nil {
		return ErrorStatus{}, c.err
	}
	return decodeErrorStatus(c.response), nil
}

// DecodeLampHours decodes a GetLamp response's lamp hour count (the last
// lamp's, for a multi-lamp reply; see decodeLampHours). Valid for KindGetLamp.
func (c *Command) DecodeLampHours() (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	hours, ok := decodeLampHours(c.response)
	if !ok {
		return 0, errorx.EnsureStackTrace(fmt.Errorf("%w: malformed LAMP response %q", ErrProtocol, c.response))
	}
	return hours, nil
}

// Clone returns a deep copy of c, safe to hand to a second caller without
// sharing the underlying byte slices.
func (c *Command) Clone() *Command {
	clone := &Command{
		kind:          c.kind,
		body:          c.body,
		err:           c.err,
		CorrelationID: c.CorrelationID,
	}
	if c.wire != nil {
		clone.wire = append([]byte(nil), c.wire...)
	}
	if c.response != nil {
		clone.response = append([]byte(nil), c.response...)
	}
	return clone
}

func (c *Command) String() string {
	return fmt.Sprintf("Command{body=%s wire=%q corr=%s}", c.body, c.wire, c.CorrelationID)
}

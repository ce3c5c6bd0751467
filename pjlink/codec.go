package pjlink

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/joomcode/errorx"
)

// Wire protocol constants, from PJLink Class 1.
const (
	// Port is the TCP port a PJLink projector listens on.
	Port = 4352

	terminator = '\r'
	header     = '%'
	version    = '1'
	separator  = ' '
	equals     = '='

	queryValue  = "?"
	errorMarker = "ERR"
	okMarker    = "OK"

	// maxFrame is the PJLink frame size limit, terminator included:
	// buildFrame accepts only frames shorter than this.
	maxFrame = 136
)

// Command bodies handled by this library.
const (
	bodyPower       = "POWR"
	bodyAVMute      = "AVMT"
	bodyInput       = "INPT"
	bodyErrorStatus = "ERST"
	bodyLamp        = "LAMP"
)

const (
	authHeader   = "PJLINK"
	authDisabled = "PJLINK 0"
)

// buildFrame concatenates header+version+body+separator+value+terminator
// and verifies the result is a short ASCII line, per PJLink's 136 byte
// frame limit.
func buildFrame(body, value string) ([]byte, error) {
	frame := make([]byte, 0, len(body)+len(value)+4)
	frame = append(frame, header, version)
	frame = append(frame, body...)
	frame = append(frame, separator)
	frame = append(frame, value...)
	frame = append(frame, terminator)

	if len(frame) >= maxFrame {
		return nil, errorx.EnsureStackTrace(fmt.Errorf(
			"%w: frame of %d bytes exceeds PJLink's %d byte limit", ErrInvalidArgument, len(frame), maxFrame))
	}
	for _, b := range frame {
		if b > 0x7f {
			return nil, errorx.EnsureStackTrace(fmt.Errorf("%w: frame is not ASCII", ErrInvalidArgument))
		}
	}
	return frame, nil
}

// commandBody returns the substring between the leading two header
// characters and the trailing terminator of an outbound wire frame.
func commandBody(wire []byte) string {
	if len(wire) < 2 {
		return ""
	}
	end := len(wire)
	if wire[end-1] == terminator {
		end--
	}
	if end < 2 {
		return ""
	}
	return string(wire[2:end])
}

// responsePayload returns the substring after the last '=' in a response
// frame, with any trailing terminator stripped first. ok is false when no
// '=' is present, i.e. the response is malformed.
func responsePayload(resp []byte) (payload string, ok bool) {
	trimmed := resp
	if n := len(trimmed); n > 0 && trimmed[n-1] == terminator {
		trimmed = trimmed[:n-1]
	}
	idx := bytes.LastIndexByte(trimmed, equals)
	if idx < 0 {
		return "", false
	}
	return string(trimmed[idx+1:]), true
}

// ResponseCode classifies a response frame per PJLink's ERRx scheme.
type ResponseCode int

const (
	// Invalid means no response has been received yet (empty frame).
	Invalid ResponseCode = iota
	// Ok means the payload is not an ERRx marker.
	Ok
	// SupportError means the projector does not support the command.
	SupportError
	// ParameterError means the command's parameter was out of range.
	ParameterError
	// TimeError means the projector could not process the command in its
	// current state (e.g. powering on/off).
	TimeError
	// ProjectorError means the projector reports an internal failure.
	ProjectorError
)

func (c ResponseCode) String() string {
	switch c {
	case Invalid:
		return "Invalid"
	case Ok:
		return "Ok"
	case SupportError:
		return "SupportError"
	case ParameterError:
		return "ParameterError"
	case TimeError:
		return "TimeError"
	case ProjectorError:
		return "ProjectorError"
	default:
		return "Unknown"
	}
}

// responseCode classifies resp: Invalid if empty, an ERRx class if the
// payload begins with "ERR" followed by a recognized digit, otherwise Ok.
func responseCode(resp []byte) ResponseCode {
	if len(resp) == 0 {
		return Invalid
	}
	payload, _ := responsePayload(resp)
	if strings.HasPrefix(payload, errorMarker) && len(payload) > 0 {
		switch payload[len(payload)-1] {
		case '1':
			return SupportError
		case '2':
			return ParameterError
		case '3':
			return TimeError
		case '4':
			return ProjectorError
		}
	}
	return Ok
}

// decodeSetResult reports whether a Set command succeeded: the payload
// must equal "OK" exactly.
func decodeSetResult(resp []byte) bool {
	payload, ok := responsePayload(resp)
	return ok && payload == okMarker
}

// PowerStatus is the decoded state of a POWR query.
type PowerStatus int

const (
	PowerUnknown PowerStatus = iota
	PowerOff
	PowerOn
	PowerCooling
	PowerWarmingUp
	PowerTimeError
	PowerProjectorError
)

func (s PowerStatus) String() string {
	switch s {
	case PowerOff:
		return "Off"
	case PowerOn:
		return "On"
	case PowerCooling:
		return "Cooling"
	case PowerWarmingUp:
		return "WarmingUp"
	case PowerTimeError:
		return "TimeError"
	case PowerProjectorError:
		return "ProjectorError"
	default:
		return "Unknown"
	}
}

func decodePowerStatus(resp []byte) PowerStatus {
	switch responseCode(resp) {
	case TimeError:
		return PowerTimeError
	case ProjectorError:
		return PowerProjectorError
	case Ok:
		payload, _ := responsePayload(resp)
		if len(payload) == 0 {
			return PowerUnknown
		}
		switch payload[len(payload)-1] {
		case '0':
			return PowerOff
		case '1':
			return PowerOn
		case '2':
			return PowerCooling
		case '3':
			return PowerWarmingUp
		default:
			return PowerUnknown
		}
	default:
		return PowerUnknown
	}
}

// AVMuteStatus is the decoded state of an AVMT query.
type AVMuteStatus int

const (
	AVMuteUnknown AVMuteStatus = iota
	AVMuteOn
	AVMuteOff
	AVMuteTimeError
	AVMuteProjectorError
)

func (s AVMuteStatus) String() string {
	switch s {
	case AVMuteOn:
		return "On"
	case AVMuteOff:
		return "Off"
	case AVMuteTimeError:
		return "TimeError"
	case AVMuteProjectorError:
		return "ProjectorError"
	default:
		return "Unknown"
	}
}

// decodeAVMuteStatus decodes an AVMT payload. Only the Ok, TimeError and
// ProjectorError response codes produce a defined status; within Ok, only
// a payload beginning with "31" is On, everything else is Off.
func decodeAVMuteStatus(resp []byte) AVMuteStatus {
	switch responseCode(resp) {
	case TimeError:
		return AVMuteTimeError
	case ProjectorError:
		return AVMuteProjectorError
	case Ok:
		payload, _ := responsePayload(resp)
		if len(payload) >= 2 && payload[:2] == "31" {
			return AVMuteOn
		}
		return AVMuteOff
	default:
		return AVMuteUnknown
	}
}

// decodeLampHours parses an LAMP payload of "<hours> <on|off> [...]" and
// returns the hour count in its second-to-last field. For a single-lamp
// reply that is the lamp's hours; for a multi-lamp reply it is the last
// lamp's hours, and the other lamps are not reported.
func decodeLampHours(resp []byte) (int, bool) {
	if responseCode(resp) != Ok {
		return 0, false
	}
	payload, _ := responsePayload(resp)
	fields := strings.Fields(payload)
	if len(fields) < 2 {
		return 0, false
	}
	hours, err := strconv.Atoi(fields[len(fields)-2])
	if err != nil {
		return 0, false
	}
	return hours, true
}

// Error status bit indices, shared by ErrorStatus.Warnings and .Errors.
const (
	BitFan = iota
	BitLamp
	BitTemperature
	BitCover
	BitFilter
	BitOther
	BitTimeError
	BitProjectorError
	BitUnknown
)

var errorStatusBits = []struct {
	bit   uint
	label string
}{
	{BitFan, "Fan"},
	{BitLamp, "Lamp"},
	{BitTemperature, "Temperature"},
	{BitCover, "Cover"},
	{BitFilter, "Filter"},
	{BitOther, "Other"},
	{BitTimeError, "Time error"},
	{BitProjectorError, "Projector error"},
	{BitUnknown, "Unknown"},
}

// ErrorStatus is the decoded state of an ERST query: two bitmasks over the
// same six indices {Fan, Lamp, Temperature, Cover, Filter, Other}, plus
// dedicated bits for a TimeError/ProjectorError/Unknown response.
type ErrorStatus struct {
	Warnings uint16
	Errors   uint16
}

func bitsToString(mask uint16) string {
	var parts []string
	for _, e := range errorStatusBits {
		if mask&(1<<e.bit) != 0 {
			parts = append(parts, e.label)
		}
	}
	return strings.Join(parts, ", ")
}

// WarningsString renders Warnings as a comma-separated label list.
func (e ErrorStatus) WarningsString() string { return bitsToString(e.Warnings) }

// ErrorsString renders Errors as a comma-separated label list.
func (e ErrorStatus) ErrorsString() string { return bitsToString(e.Errors) }

func decodeErrorStatus(resp []byte) ErrorStatus {
	switch responseCode(resp) {
	case TimeError:
		return ErrorStatus{Errors: 1 << BitTimeError}
	case ProjectorError:
		return ErrorStatus{Errors: 1 << BitProjectorError}
	case Ok:
		payload, _ := responsePayload(resp)
		if len(payload) != 6 {
			return ErrorStatus{Errors: 1 << BitUnknown}
		}
		var es ErrorStatus
		for i := 0; i < 6; i++ {
			switch payload[i] {
			case '1':
				es.Warnings |= 1 << uint(i)
			case '2':
				es.Errors |= 1 << uint(i)
			}
		}
		return es
	default:
		return ErrorStatus{Errors: 1 << BitUnknown}
	}
}

// InputType is the PJLink input class character for an INPT command.
type InputType byte

const (
	InputRGB     InputType = '1'
	InputVideo   InputType = '2'
	InputDigital InputType = '3'
	InputStorage InputType = '4'
	InputNetwork InputType = '5'
)

// buildInputValue concatenates the input type with a single decimal digit
// for number, rejecting numbers outside PJLink's 1-9 range.
func buildInputValue(t InputType, number int) (string, error) {
	if number < 1 || number > 9 {
		return "", errorx.EnsureStackTrace(fmt.Errorf(
			"%w: input number %d out of range 1-9", ErrInvalidArgument, number))
	}
	return string([]byte{byte(t), byte('0' + number)}), nil
}

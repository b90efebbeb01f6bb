package lorawan

import (
	"errors"
	"fmt"
)

// Decode errors
var (
	ErrMalformedHex                = errors.New("lorawan: malformed hex input")
	ErrTruncatedFrame              = errors.New("lorawan: truncated frame")
	ErrUnsupportedFrameType        = errors.New("lorawan: unsupported frame type")
	ErrConflictingCommandPlacement = errors.New("lorawan: MAC commands in both FOpts and FRMPayload")
	ErrInvalidLength               = errors.New("lorawan: invalid payload length")
	ErrInvalidDirection            = errors.New("lorawan: invalid direction")
)

// UnrecognizedCommandError is returned when a CID is not in the command table
// for the stream direction. Commands after it cannot be framed.
type UnrecognizedCommandError struct {
	CID       CID
	Direction Direction
	Offset    int
}

func (e *UnrecognizedCommandError) Error() string {
	return fmt.Sprintf("lorawan: unrecognized %s MAC command %02x at offset %d", e.Direction, byte(e.CID), e.Offset)
}

// TruncatedCommandError is returned when a command body runs past the stream
type TruncatedCommandError struct {
	CID    CID
	Name   string
	Offset int
	Want   int
	Have   int
}

func (e *TruncatedCommandError) Error() string {
	return fmt.Sprintf("lorawan: %s at offset %d needs %d bytes, %d left", e.Name, e.Offset, e.Want, e.Have)
}

// MissingKeyError is returned when a cipher operation has no key
type MissingKeyError struct {
	Kind KeyKind
}

func (e *MissingKeyError) Error() string {
	if e.Kind == KeyUnspecified {
		return "lorawan: missing key"
	}
	return fmt.Sprintf("lorawan: missing %s", e.Kind)
}

// ErrorKind maps an error to a stable label
func ErrorKind(err error) string {
	var (
		unrecognized *UnrecognizedCommandError
		truncatedCmd *TruncatedCommandError
		missingKey   *MissingKeyError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedHex):
		return "malformed_hex"
	case errors.Is(err, ErrTruncatedFrame):
		return "truncated_frame"
	case errors.Is(err, ErrUnsupportedFrameType):
		return "unsupported_frame_type"
	case errors.Is(err, ErrConflictingCommandPlacement):
		return "conflicting_command_placement"
	case errors.Is(err, ErrInvalidLength):
		return "invalid_length"
	case errors.Is(err, ErrInvalidDirection):
		return "invalid_direction"
	case errors.As(err, &unrecognized):
		return "unrecognized_command"
	case errors.As(err, &truncatedCmd):
		return "truncated_command"
	case errors.As(err, &missingKey):
		return "missing_key"
	default:
		return "internal"
	}
}

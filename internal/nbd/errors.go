package nbd

import "golang.org/x/xerrors"

// ProtocolError is fatal: once a request's magic or command type cannot be
// trusted, framing is lost and the only safe action is to close the
// connection without attempting a reply.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "nbd: protocol error: " + e.Msg }

func protocolErrorf(format string, args ...interface{}) error {
	return &ProtocolError{Msg: xerrors.Errorf(format, args...).Error()}
}

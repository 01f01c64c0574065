package nbd

import (
	"io"

	"github.com/pechfunk/sbnbd/internal/blockdev"
)

// Device is the capability the protocol engine needs from a block device —
// satisfied directly by *blockdev.BandBlockDevice.
type Device interface {
	Read(offset, length int64) ([]blockdev.Segment, error)
	Write(offset int64, data []byte) error
}

type mode int

const (
	modeReady mode = iota
	modeWriting
	modeDiscarding
)

// connState is either Ready, or Writing{handle, offset, remaining}.
// modeDiscarding is an internal refinement of Writing that absorbs the rest
// of a write payload after a mid-transfer error, so framing survives
// without closing the connection.
type connState struct {
	mode         mode
	handle       [8]byte
	offset       int64
	remaining    int64
	pendingErrno uint32
}

// Engine drives one connection's worth of the NBD state machine. It is
// transport-agnostic: Feed can be called with arbitrarily chunked byte
// slices (byte-by-byte, random splits, or the whole request at once) and
// produces identical wire responses and device effects regardless of how
// the caller happened to chunk the bytes.
type Engine struct {
	device     Device
	buf        []byte
	state      connState
	disconnect bool
}

// NewEngine returns an Engine in the Ready state, as required immediately
// after the greeting is sent.
func NewEngine(device Device) *Engine {
	return &Engine{device: device}
}

// Disconnected reports whether a CMD_DISCONNECT has been processed; the
// caller must close the transport and stop feeding further bytes.
func (e *Engine) Disconnected() bool { return e.disconnect }

// Feed delivers bs to the state machine, writing any wire responses it
// produces to out, until every byte of bs has been consumed. A non-nil
// error is either a *ProtocolError or an error from writing to out; both
// are fatal: the caller must close the connection without attempting a
// further reply.
func (e *Engine) Feed(bs []byte, out io.Writer) error {
	for len(bs) > 0 {
		if e.disconnect {
			return nil
		}
		n, err := e.step(bs, out)
		if err != nil {
			return err
		}
		bs = bs[n:]
	}
	return nil
}

func (e *Engine) step(bs []byte, out io.Writer) (int, error) {
	if e.state.mode == modeReady {
		return e.stepReady(bs, out)
	}
	return e.stepWriting(bs, out)
}

func (e *Engine) stepReady(bs []byte, out io.Writer) (int, error) {
	e.buf = append(e.buf, bs...)
	if len(e.buf) < requestHeaderSize {
		return len(bs), nil
	}

	req, ok := parseRequest(e.buf[:requestHeaderSize])
	// The Ready-state buffer never holds more than a header's worth of
	// bytes across calls to stepReady, so any surplus beyond the header
	// came from this chunk and the subtraction below never goes negative.
	unusedSize := len(e.buf) - requestHeaderSize
	numBytesRead := len(bs) - unusedSize
	e.buf = nil
	if !ok {
		return 0, protocolErrorf("bad request magic")
	}

	switch req.cmd {
	case CmdRead:
		if err := e.doRead(req, out); err != nil {
			return numBytesRead, err
		}
		return numBytesRead, nil
	case CmdWrite:
		e.state = connState{mode: modeWriting, handle: req.handle, offset: req.offset, remaining: req.length}
		return numBytesRead, nil
	case CmdDisconnect:
		e.disconnect = true
		return numBytesRead, nil
	default:
		return 0, protocolErrorf("unknown command type %d", req.cmd)
	}
}

// doRead performs a pre-materialise read: the full segment sequence is
// obtained before anything is written to the transport, so an I/O error
// discovered partway through produces a clean error reply with no payload
// rather than a desynchronised stream.
func (e *Engine) doRead(req request, out io.Writer) error {
	segs, err := e.device.Read(req.offset, req.length)
	if err != nil {
		reply := appendReplyHeader(nil, blockdev.Errno(err), req.handle)
		_, werr := out.Write(reply)
		return werr
	}
	reply := appendReplyHeader(make([]byte, 0, 16+req.length), 0, req.handle)
	for _, seg := range segs {
		reply = append(reply, seg...)
	}
	_, werr := out.Write(reply)
	return werr
}

func (e *Engine) stepWriting(bs []byte, out io.Writer) (int, error) {
	take := int64(len(bs))
	if take > e.state.remaining {
		take = e.state.remaining
	}

	if e.state.mode == modeDiscarding {
		e.state.remaining -= take
		if e.state.remaining == 0 {
			reply := appendReplyHeader(nil, e.state.pendingErrno, e.state.handle)
			_, werr := out.Write(reply)
			e.state = connState{}
			return int(take), werr
		}
		return int(take), nil
	}

	err := e.device.Write(e.state.offset, bs[:take])
	if err != nil {
		errno := blockdev.Errno(err)
		remaining := e.state.remaining - take
		if remaining == 0 {
			reply := appendReplyHeader(nil, errno, e.state.handle)
			_, werr := out.Write(reply)
			e.state = connState{}
			return int(take), werr
		}
		e.state = connState{mode: modeDiscarding, handle: e.state.handle, remaining: remaining, pendingErrno: errno}
		return int(take), nil
	}

	e.state.offset += take
	e.state.remaining -= take
	if e.state.remaining == 0 {
		reply := appendReplyHeader(nil, 0, e.state.handle)
		_, werr := out.Write(reply)
		e.state = connState{}
		return int(take), werr
	}
	return int(take), nil
}

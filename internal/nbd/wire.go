// Package nbd implements the "oldstyle" Network Block Device wire protocol:
// byte-stream framing of requests whose payload may straddle many TCP
// segments, dispatch to a block device, and correctly framed responses —
// including error responses whose error code reflects failures discovered
// mid-transfer.
package nbd

import "encoding/binary"

const (
	serverMagicNBD      = "NBDMAGIC"
	serverMagicCliServ  = uint64(0x0000420281861253)
	requestHeaderSize   = 28
	requestMagic        = uint32(0x25609513)
	replyMagic          = uint32(0x67446698)
	greetingPaddingSize = 124
	greetingSize        = 8 + 8 + 8 + greetingPaddingSize
)

// Command is an NBD request's opcode.
type Command uint32

const (
	CmdRead       Command = 0
	CmdWrite      Command = 1
	CmdDisconnect Command = 2
)

// request is the parsed 28-byte NBD request header.
type request struct {
	cmd    Command
	handle [8]byte
	offset int64
	length int64
}

// parseRequest decodes the 28-byte header at the front of buf. Callers must
// ensure len(buf) >= requestHeaderSize.
func parseRequest(buf []byte) (request, bool) {
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != requestMagic {
		return request{}, false
	}
	var req request
	req.cmd = Command(binary.BigEndian.Uint32(buf[4:8]))
	copy(req.handle[:], buf[8:16])
	req.offset = int64(binary.BigEndian.Uint64(buf[16:24]))
	req.length = int64(binary.BigEndian.Uint32(buf[24:28]))
	return req, true
}

// appendGreeting appends the oldstyle handshake greeting (8-byte magic,
// 8-byte cliserv magic, 8-byte size, 124 bytes of zero padding) for a volume
// of size totalSize to buf and returns the extended slice.
func appendGreeting(buf []byte, totalSize int64) []byte {
	buf = append(buf, serverMagicNBD...)
	var cliserv [8]byte
	binary.BigEndian.PutUint64(cliserv[:], serverMagicCliServ)
	buf = append(buf, cliserv[:]...)
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(totalSize))
	buf = append(buf, size[:]...)
	var padding [greetingPaddingSize]byte
	return append(buf, padding[:]...)
}

// appendReplyHeader appends the 16-byte NBD reply header (magic, errno,
// handle) to buf and returns the extended slice.
func appendReplyHeader(buf []byte, errno uint32, handle [8]byte) []byte {
	var hdr [16]byte
	binary.BigEndian.PutUint32(hdr[0:4], replyMagic)
	binary.BigEndian.PutUint32(hdr[4:8], errno)
	copy(hdr[8:16], handle[:])
	return append(buf, hdr[:]...)
}

package base

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/lithdew/bytesutil"
)

// msgpack codes of the unsigned integers a length prefix may be encoded with
const (
	codeUint8  = 0xcc
	codeUint16 = 0xcd
	codeUint32 = 0xce
	codeUint64 = 0xcf
)

// AppendFrameHeader appends the length prefix for a payload of size n to dst.
// The prefix is always encoded as msgpack uint32 (0xce + 4 bytes big endian).
func AppendFrameHeader(dst []byte, n int) []byte {
	dst = append(dst, codeUint32)
	return bytesutil.AppendUint32BE(dst, uint32(n))
}

// WriteFrame writes a frame to the connection with the format:
// - 5 bytes: payload length (msgpack uint32)
// - N bytes: payload
func WriteFrame(w io.Writer, payload []byte) error {
	header := AppendFrameHeader(make([]byte, 0, common.FrameHeaderSize), len(payload))

	b := net.Buffers{header, payload}
	_, err := b.WriteTo(w)
	return err
}

// ReadFrame reads one frame and returns its payload. The length prefix may
// use any msgpack unsigned integer encoding. A malformed or oversized prefix
// fails with ErrSync, in which case the stream can not be resynchronized.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	code, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var size uint64
	switch {
	case code <= 0x7f:
		size = uint64(code)
	case code == codeUint8:
		b, err := readN(r, 1)
		if err != nil {
			return nil, err
		}
		size = uint64(b[0])
	case code == codeUint16:
		b, err := readN(r, 2)
		if err != nil {
			return nil, err
		}
		size = uint64(bytesutil.Uint16BE(b))
	case code == codeUint32:
		b, err := readN(r, 4)
		if err != nil {
			return nil, err
		}
		size = uint64(bytesutil.Uint32BE(b))
	case code == codeUint64:
		b, err := readN(r, 8)
		if err != nil {
			return nil, err
		}
		size = binary.BigEndian.Uint64(b)
	default:
		return nil, common.Errorf(common.ErrSync, "read frame", "invalid length prefix 0x%02x", code)
	}

	if size > common.MaxFrameSize {
		return nil, common.Errorf(common.ErrSync, "read frame", "frame of %d bytes exceeds limit", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// readN reads exactly n bytes
func readN(r *bufio.Reader, n int) ([]byte, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// classifyDialError maps errors of the dial phase to the error kinds
func classifyDialError(op string, err error) error {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		return common.NewError(common.ErrResolve, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewError(common.ErrTimeout, op, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return common.NewError(common.ErrTimeout, op, err)
	default:
		return common.NewError(common.ErrConnect, op, err)
	}
}

// classifyIOError maps errors of an established connection to the error kinds
func classifyIOError(op string, err error) error {
	var kerr *common.Error
	if errors.As(err, &kerr) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return common.NewError(common.ErrTimeout, op, err)
	}
	return common.NewError(common.ErrSystem, op, err)
}

package base

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/stretchr/testify/require"
)

// TestFrameRoundTrip tests that written frames are read back unchanged
func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0xab}, 70000),
	}

	var buf bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, WriteFrame(&buf, p))
	}

	r := bufio.NewReader(&buf)
	for _, p := range payloads {
		frame, err := ReadFrame(r)
		require.NoError(t, err)
		require.Equal(t, p, frame)
	}

	_, err := ReadFrame(r)
	require.Equal(t, io.EOF, err)
}

// TestAppendFrameHeader checks the exact encoding of the length prefix
func TestAppendFrameHeader(t *testing.T) {
	require.Equal(t, []byte{0xce, 0x00, 0x00, 0x00, 0x00}, AppendFrameHeader(nil, 0))
	require.Equal(t, []byte{0xce, 0x00, 0x01, 0x00, 0x02}, AppendFrameHeader(nil, 65538))
	require.Len(t, AppendFrameHeader(nil, 1), common.FrameHeaderSize)
}

// TestReadFramePrefixEncodings tests all unsigned integer encodings of the prefix
func TestReadFramePrefixEncodings(t *testing.T) {
	testCases := []struct {
		name  string
		input []byte
	}{
		{"fixint", []byte{0x03, 'a', 'b', 'c'}},
		{"uint8", []byte{0xcc, 0x03, 'a', 'b', 'c'}},
		{"uint16", []byte{0xcd, 0x00, 0x03, 'a', 'b', 'c'}},
		{"uint32", []byte{0xce, 0x00, 0x00, 0x00, 0x03, 'a', 'b', 'c'}},
		{"uint64", []byte{0xcf, 0, 0, 0, 0, 0, 0, 0, 0x03, 'a', 'b', 'c'}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := ReadFrame(bufio.NewReader(bytes.NewReader(tc.input)))
			require.NoError(t, err)
			require.Equal(t, []byte("abc"), frame)
		})
	}
}

// TestReadFrameErrors tests malformed and truncated frames
func TestReadFrameErrors(t *testing.T) {
	t.Run("invalid prefix", func(t *testing.T) {
		_, err := ReadFrame(bufio.NewReader(bytes.NewReader([]byte{0xa3, 'a', 'b', 'c'})))
		require.True(t, errors.Is(err, common.ErrSync), "got %v", err)
	})

	t.Run("oversized", func(t *testing.T) {
		input := []byte{0xcf, 0xff, 0, 0, 0, 0, 0, 0, 0}
		_, err := ReadFrame(bufio.NewReader(bytes.NewReader(input)))
		require.True(t, errors.Is(err, common.ErrSync), "got %v", err)
	})

	t.Run("truncated payload", func(t *testing.T) {
		_, err := ReadFrame(bufio.NewReader(bytes.NewReader([]byte{0x05, 'a', 'b'})))
		require.Equal(t, io.ErrUnexpectedEOF, err)
	})

	t.Run("truncated prefix", func(t *testing.T) {
		_, err := ReadFrame(bufio.NewReader(bytes.NewReader([]byte{0xce, 0x00})))
		require.Equal(t, io.ErrUnexpectedEOF, err)
	})
}

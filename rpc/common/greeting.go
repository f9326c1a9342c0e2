package common

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// GreetingSize is the size of the greeting every server sends after accept
	GreetingSize = 128

	// greetingLineSize is the size of each of the two greeting lines
	greetingLineSize = GreetingSize / 2

	// ScrambleSize is the number of salt bytes used by chap-sha1
	ScrambleSize = sha1.Size

	// AuthMechanism is the only auth mechanism supported by the client
	AuthMechanism = "chap-sha1"
)

// Greeting is the parsed server greeting
type Greeting struct {
	// Version is the first greeting line, e.g. "Tarantool 2.11.1 (Binary) <uuid>"
	Version string
	// Salt is the decoded salt of the second greeting line
	Salt []byte
}

// ParseGreeting parses the 128 byte greeting sent by the server.
// It fails with ErrSync if the greeting is malformed.
func ParseGreeting(b []byte) (*Greeting, error) {
	if len(b) != GreetingSize {
		return nil, Errorf(ErrSync, "greeting", "expected %d bytes, got %d", GreetingSize, len(b))
	}
	if b[greetingLineSize-1] != '\n' || b[GreetingSize-1] != '\n' {
		return nil, Errorf(ErrSync, "greeting", "lines are not newline terminated")
	}

	version := strings.TrimRight(string(b[:greetingLineSize-1]), " \x00")
	if !strings.HasPrefix(version, "Tarantool ") {
		return nil, Errorf(ErrSync, "greeting", "unexpected server %q", version)
	}

	encoded := bytes.TrimRight(b[greetingLineSize:GreetingSize-1], " \x00")
	salt, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, NewError(ErrSync, "greeting", fmt.Errorf("invalid salt: %w", err))
	}
	if len(salt) < ScrambleSize {
		return nil, Errorf(ErrSync, "greeting", "salt too short (%d bytes)", len(salt))
	}

	return &Greeting{Version: version, Salt: salt}, nil
}

// Scramble computes the chap-sha1 scramble for the given password
func (g *Greeting) Scramble(password string) []byte {
	return Scramble(g.Salt, password)
}

// Scramble computes sha1(password) XOR sha1(salt[:20] ++ sha1(sha1(password)))
func Scramble(salt []byte, password string) []byte {
	step1 := sha1.Sum([]byte(password))
	step2 := sha1.Sum(step1[:])

	h := sha1.New()
	h.Write(salt[:ScrambleSize])
	h.Write(step2[:])
	step3 := h.Sum(nil)

	scramble := make([]byte, ScrambleSize)
	for i := range scramble {
		scramble[i] = step1[i] ^ step3[i]
	}
	return scramble
}

// FormatGreeting builds a greeting as sent by a server. It is the inverse
// of ParseGreeting and is used by the test server.
func FormatGreeting(version string, salt []byte) []byte {
	b := bytes.Repeat([]byte{' '}, GreetingSize)
	copy(b[:greetingLineSize-1], version)
	b[greetingLineSize-1] = '\n'
	copy(b[greetingLineSize:GreetingSize-1], base64.StdEncoding.EncodeToString(salt))
	b[GreetingSize-1] = '\n'
	return b
}

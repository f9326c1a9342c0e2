package common

import "fmt"

// --------------------------------------------------------------------------
// IPROTO Keys
// --------------------------------------------------------------------------

// Keys used in the header and body maps of IPROTO packets
const (
	KeyCode          uint64 = 0x00 // header: request type / response code
	KeySync          uint64 = 0x01 // header: correlation id
	KeySchemaVersion uint64 = 0x05 // header: schema version of the server
	KeyTuple         uint64 = 0x21 // body: call arguments, auth scramble
	KeyFunctionName  uint64 = 0x22 // body: name of the called function
	KeyUserName      uint64 = 0x23 // body: user for auth requests
	KeyData          uint64 = 0x30 // body: result of a successful request
	KeyError24       uint64 = 0x31 // body: error message of a failed request
)

// --------------------------------------------------------------------------
// Request Types
// --------------------------------------------------------------------------

// RequestType is the value of the KeyCode header field in requests
type RequestType uint32

const (
	RequestTypeOK   RequestType = 0x00
	RequestTypeAuth RequestType = 0x07
	RequestTypeCall RequestType = 0x0a
)

// String returns the string representation of a RequestType.
func (t RequestType) String() string {
	switch t {
	case RequestTypeOK:
		return "ok"
	case RequestTypeAuth:
		return "auth"
	case RequestTypeCall:
		return "call"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint32(t))
	}
}

// --------------------------------------------------------------------------
// Response Codes and Limits
// --------------------------------------------------------------------------

const (
	// ErrorTypeFlag is set in the response code of every failed request,
	// the lower bits carry the server error code
	ErrorTypeFlag uint32 = 0x8000

	// Server error codes used by this package
	ErrCodeProcLua          uint32 = 32
	ErrCodeNoSuchProc       uint32 = 33
	ErrCodeNoSuchUser       uint32 = 45
	ErrCodePasswordMismatch uint32 = 47

	// FrameHeaderSize is the size of the length prefix written in front of
	// every request (0xce + big endian uint32)
	FrameHeaderSize = 5

	// MaxFrameSize is the largest response body accepted from the server
	MaxFrameSize = 1 << 30

	// DefaultPort is used when the url does not contain a port
	DefaultPort = "3301"
)

// --------------------------------------------------------------------------
// Response Structure
// --------------------------------------------------------------------------

// Response is a decoded IPROTO response frame.
// Data holds the raw msgpack encoding of the body's data field and is only
// set for successful responses, Error only for failed ones.
type Response struct {
	Sync          uint64
	Code          uint32
	SchemaVersion uint64
	Data          []byte
	Error         string
}

// Failed reports whether the server answered with an error
func (r *Response) Failed() bool {
	return r.Code != 0
}

// ErrorCode returns the server error code without the error type flag
func (r *Response) ErrorCode() uint32 {
	return r.Code &^ ErrorTypeFlag
}

// ErrorMessage returns the error message of a failed response. Servers
// that send no message get a generic one containing the error code.
func (r *Response) ErrorMessage() string {
	if !r.Failed() {
		return ""
	}
	if r.Error != "" {
		return r.Error
	}
	return fmt.Sprintf("tarantool error (code %d)", r.ErrorCode())
}

// --------------------------------------------------------------------------
// Request Structure
// --------------------------------------------------------------------------

// Request is a decoded IPROTO request frame as seen by a server.
// FunctionName and Args are set for call requests, UserName and Scramble
// for auth requests.
type Request struct {
	Sync         uint64
	Type         RequestType
	FunctionName string
	Args         []interface{}
	UserName     string
	Scramble     []byte
}

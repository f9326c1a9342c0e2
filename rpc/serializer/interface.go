package serializer

import (
	"io"

	"github.com/ValentinKolb/lwtnt/rpc/common"
)

// IProtoSerializer is the interface for all IPROTO packet serializers.
// The length prefix of a frame is not part of the packet, it is written and
// read by the transport layer.
type IProtoSerializer interface {
	// WriteCall writes the header and body of a call request to w
	WriteCall(w io.Writer, sync uint64, function string, args []interface{}) error
	// WriteAuth writes the header and body of a chap-sha1 auth request to w
	WriteAuth(w io.Writer, sync uint64, user string, scramble []byte) error
	// ReadResponse decodes a response packet (without length prefix)
	ReadResponse(frame []byte) (*common.Response, error)

	// ReadRequest decodes a request packet, used by the server side
	ReadRequest(frame []byte) (*common.Request, error)
	// WriteResponse writes a response packet to w, used by the server side
	WriteResponse(w io.Writer, resp *common.Response) error
}

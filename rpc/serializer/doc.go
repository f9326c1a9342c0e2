// Package serializer provides the packet encoding of the IPROTO binary
// protocol spoken by tarantool. It defines a common interface and a msgpack
// based implementation for writing requests and reading responses.
//
// The package focuses on:
//   - Encoding call and auth requests into a header map and a body map
//   - Decoding response packets into common.Response without decoding the
//     result itself, so callers only pay for what they read
//   - The server side counterpart (reading requests, writing responses),
//     used by the in-process test server
//
// Key Components:
//
//   - IProtoSerializer: Core interface that all serializer implementations must satisfy.
//
//   - msgpackSerializerImpl: Implementation on top of vmihailenco/msgpack. Requests
//     are streamed into a caller provided io.Writer (usually a pooled buffer),
//     responses are decoded from a complete frame.
//
// Framing:
//
//	A packet on the wire is prefixed by its length as msgpack unsigned
//	integer. The prefix is handled by the transport layer, the serializer
//	only sees the packet itself.
//
// Thread Safety:
//
//	The serializer is stateless and safe for concurrent use across multiple
//	goroutines without additional synchronization.
//
// Usage:
//
//	s := serializer.NewMsgpackSerializer()
//	buf := bytebufferpool.Get()
//	err := s.WriteCall(buf, sync, "box.info", nil)
//	// ... send buf.B, receive frame ...
//	resp, err := s.ReadResponse(frame)
package serializer

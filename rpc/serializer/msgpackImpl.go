package serializer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/vmihailenco/msgpack/v5"
)

// emptyArray is the msgpack encoding of an empty array. It is used as
// result of successful responses that carry no data.
var emptyArray = []byte{0x90}

// NewMsgpackSerializer creates a new serializer for IPROTO packets
func NewMsgpackSerializer() IProtoSerializer {
	return &msgpackSerializerImpl{}
}

// msgpackSerializerImpl implements IProtoSerializer on top of msgpack/v5
type msgpackSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IProtoSerializer)
// --------------------------------------------------------------------------

func (s msgpackSerializerImpl) WriteCall(w io.Writer, sync uint64, function string, args []interface{}) error {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(w)

	if err := s.writeHeader(enc, uint64(common.RequestTypeCall), sync); err != nil {
		return err
	}

	if args == nil {
		args = []interface{}{}
	}

	// Body: {function name, args}
	if err := enc.EncodeMapLen(2); err != nil {
		return err
	}
	if err := enc.EncodeUint(common.KeyFunctionName); err != nil {
		return err
	}
	if err := enc.EncodeString(function); err != nil {
		return err
	}
	if err := enc.EncodeUint(common.KeyTuple); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(len(args)); err != nil {
		return err
	}
	for i, arg := range args {
		if err := enc.Encode(arg); err != nil {
			return fmt.Errorf("failed to encode argument %d: %w", i, err)
		}
	}
	return nil
}

func (s msgpackSerializerImpl) WriteAuth(w io.Writer, sync uint64, user string, scramble []byte) error {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(w)

	if err := s.writeHeader(enc, uint64(common.RequestTypeAuth), sync); err != nil {
		return err
	}

	// Body: {user name, [mechanism, scramble]}
	if err := enc.EncodeMapLen(2); err != nil {
		return err
	}
	if err := enc.EncodeUint(common.KeyUserName); err != nil {
		return err
	}
	if err := enc.EncodeString(user); err != nil {
		return err
	}
	if err := enc.EncodeUint(common.KeyTuple); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeString(common.AuthMechanism); err != nil {
		return err
	}
	return enc.EncodeString(string(scramble))
}

func (s msgpackSerializerImpl) ReadResponse(frame []byte) (*common.Response, error) {
	r := bytes.NewReader(frame)
	dec := msgpack.NewDecoder(r)

	resp := &common.Response{}
	if err := s.readHeader(dec, &resp.Code, &resp.Sync, &resp.SchemaVersion); err != nil {
		return nil, err
	}

	// Body is optional
	if r.Len() > 0 {
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, common.NewError(common.ErrSync, "decode body", err)
		}
		for i := 0; i < n; i++ {
			key, err := dec.DecodeUint64()
			if err != nil {
				return nil, common.NewError(common.ErrSync, "decode body", err)
			}
			switch key {
			case common.KeyData:
				raw, err := dec.DecodeRaw()
				if err != nil {
					return nil, common.NewError(common.ErrSync, "decode data", err)
				}
				resp.Data = raw
			case common.KeyError24:
				msg, err := dec.DecodeString()
				if err != nil {
					return nil, common.NewError(common.ErrSync, "decode error", err)
				}
				resp.Error = msg
			default:
				if err := dec.Skip(); err != nil {
					return nil, common.NewError(common.ErrSync, "decode body", err)
				}
			}
		}
	}

	if resp.Failed() {
		resp.Data = nil
	} else if resp.Data == nil {
		resp.Data = emptyArray
	}
	return resp, nil
}

func (s msgpackSerializerImpl) ReadRequest(frame []byte) (*common.Request, error) {
	r := bytes.NewReader(frame)
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)

	req := &common.Request{}
	var code uint32
	var schema uint64
	if err := s.readHeader(dec, &code, &req.Sync, &schema); err != nil {
		return nil, err
	}
	req.Type = common.RequestType(code)

	if r.Len() == 0 {
		return req, nil
	}

	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, common.NewError(common.ErrSync, "decode body", err)
	}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeUint64()
		if err != nil {
			return nil, common.NewError(common.ErrSync, "decode body", err)
		}
		switch key {
		case common.KeyFunctionName:
			req.FunctionName, err = dec.DecodeString()
		case common.KeyUserName:
			req.UserName, err = dec.DecodeString()
		case common.KeyTuple:
			req.Args, err = dec.DecodeSlice()
		default:
			err = dec.Skip()
		}
		if err != nil {
			return nil, common.NewError(common.ErrSync, "decode body", err)
		}
	}
	if req.Args == nil {
		req.Args = []interface{}{}
	}

	// The auth tuple is [mechanism, scramble]
	if req.Type == common.RequestTypeAuth && len(req.Args) == 2 {
		switch scramble := req.Args[1].(type) {
		case string:
			req.Scramble = []byte(scramble)
		case []byte:
			req.Scramble = scramble
		}
	}
	return req, nil
}

func (s msgpackSerializerImpl) WriteResponse(w io.Writer, resp *common.Response) error {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(w)

	// Header: {code, sync, schema version}
	if err := enc.EncodeMapLen(3); err != nil {
		return err
	}
	if err := enc.EncodeUint(common.KeyCode); err != nil {
		return err
	}
	if err := enc.EncodeUint(uint64(resp.Code)); err != nil {
		return err
	}
	if err := enc.EncodeUint(common.KeySync); err != nil {
		return err
	}
	if err := enc.EncodeUint(resp.Sync); err != nil {
		return err
	}
	if err := enc.EncodeUint(common.KeySchemaVersion); err != nil {
		return err
	}
	if err := enc.EncodeUint(resp.SchemaVersion); err != nil {
		return err
	}

	switch {
	case resp.Failed():
		if err := enc.EncodeMapLen(1); err != nil {
			return err
		}
		if err := enc.EncodeUint(common.KeyError24); err != nil {
			return err
		}
		return enc.EncodeString(resp.Error)
	case resp.Data != nil:
		if err := enc.EncodeMapLen(1); err != nil {
			return err
		}
		if err := enc.EncodeUint(common.KeyData); err != nil {
			return err
		}
		return enc.Encode(msgpack.RawMessage(resp.Data))
	default:
		return enc.EncodeMapLen(0)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// writeHeader writes the header map {code, sync}
func (s msgpackSerializerImpl) writeHeader(enc *msgpack.Encoder, code uint64, sync uint64) error {
	if err := enc.EncodeMapLen(2); err != nil {
		return err
	}
	if err := enc.EncodeUint(common.KeyCode); err != nil {
		return err
	}
	if err := enc.EncodeUint(code); err != nil {
		return err
	}
	if err := enc.EncodeUint(common.KeySync); err != nil {
		return err
	}
	return enc.EncodeUint(sync)
}

// readHeader reads the header map, unknown keys are skipped
func (s msgpackSerializerImpl) readHeader(dec *msgpack.Decoder, code *uint32, sync *uint64, schema *uint64) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return common.NewError(common.ErrSync, "decode header", err)
	}
	if n <= 0 {
		return common.Errorf(common.ErrSync, "decode header", "empty header")
	}

	hasSync := false
	for i := 0; i < n; i++ {
		key, err := dec.DecodeUint64()
		if err != nil {
			return common.NewError(common.ErrSync, "decode header", err)
		}
		switch key {
		case common.KeyCode:
			var v uint64
			if v, err = dec.DecodeUint64(); err == nil {
				*code = uint32(v)
			}
		case common.KeySync:
			*sync, err = dec.DecodeUint64()
			hasSync = err == nil
		case common.KeySchemaVersion:
			*schema, err = dec.DecodeUint64()
		default:
			err = dec.Skip()
		}
		if err != nil {
			return common.NewError(common.ErrSync, "decode header", err)
		}
	}

	if !hasSync {
		return common.Errorf(common.ErrSync, "decode header", "missing sync")
	}
	return nil
}

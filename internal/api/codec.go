package api

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

const codecName = "msgpack"

// MsgpackCodec carries API messages as msgpack so no generated code is needed
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v interface{}) ([]byte, error) {
	d, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack marshal")
	}
	return d, nil
}

func (MsgpackCodec) Unmarshal(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "msgpack unmarshal")
	}
	return nil
}

func (MsgpackCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(MsgpackCodec{})
}

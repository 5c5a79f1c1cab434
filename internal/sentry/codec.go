package sentry

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// gobCodec lets PeerClient's hand-written envelope types ride over
// grpc.ClientConn without a protoc codegen step: the envelopes in pb.go
// satisfy proto.Message only so they slot into the same call shape a
// generated stub would use, but encoding is plain gob.
type gobCodec struct{}

func (gobCodec) Name() string { return codecName }

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

const codecName = "gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}

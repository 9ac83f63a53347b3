// Package geyser implements the unified gRPC Stream Source transport (§4.3,
// §9 open question 2: "a unified gRPC GeyserSource"). No .proto schema for a
// Geyser-style service ships in this codebase's dependency set, so the wire
// messages here are plain Go structs carried over grpc's codec extension
// point with JSON framing instead of protoc-generated bindings — the
// transport (google.golang.org/grpc streaming and backpressure) is the real
// thing; only the message encoding is simplified. Connections are dialed
// with insecure credentials (see NewSource).
package geyser

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "sniperjson"

// jsonCodec implements grpc/encoding.Codec so grpc.ClientConn can frame our
// plain Go request/response structs without generated protobuf stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

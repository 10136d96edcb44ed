package store

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec encodes and decodes values of V for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// JSON is a Codec using encoding/json. The zero value is ready to use.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

// Msgpack is a Codec using vmihailenco/msgpack. The zero value is ready to
// use. Use `msgpack:"name"` tags for explicit field names.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}

// CBOR is a Codec using fxamacker/cbor. Construct with NewCBOR.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBOR constructs a CBOR codec. Deterministic selects RFC 8949 core
// deterministic encoding.
func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	var eo cbor.EncOptions
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }
func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}

// Protobuf stores V as a google.protobuf.Value in protobuf wire format. V
// goes through its JSON form, so it needs no generated message type.
type Protobuf[V any] struct{}

func (Protobuf[V]) Encode(v V) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	pv, err := structpb.NewValue(generic)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(pv)
}

func (Protobuf[V]) Decode(b []byte) (V, error) {
	var v V
	pv := &structpb.Value{}
	if err := proto.Unmarshal(b, pv); err != nil {
		return v, err
	}
	raw, err := json.Marshal(pv.AsInterface())
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(raw, &v)
	return v, err
}

// Limit wraps a codec to reject oversized payloads at Decode time.
// MaxDecode <= 0 disables the check.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("store: payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}

// Codecs lists the names accepted by NewCodec.
var Codecs = []string{"json", "msgpack", "cbor", "protobuf"}

// NewCodec returns the named codec wrapped in a Limit of maxDecode bytes.
func NewCodec[V any](name string, maxDecode int) (Codec[V], error) {
	var inner Codec[V]
	switch name {
	case "", "json":
		inner = JSON[V]{}
	case "msgpack":
		inner = Msgpack[V]{}
	case "cbor":
		c, err := NewCBOR[V](false)
		if err != nil {
			return nil, fmt.Errorf("store: cbor codec: %w", err)
		}
		inner = c
	case "protobuf":
		inner = Protobuf[V]{}
	default:
		return nil, fmt.Errorf("store: unknown codec %q", name)
	}
	return Limit[V]{Inner: inner, MaxDecode: maxDecode}, nil
}

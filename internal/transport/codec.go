package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownCodec is returned by CodecByName for unsupported names.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec serializes batches of tuples. Both codecs carry the same shape:
// an array of [name, data?, callbackId?] or [callbackId, data] arrays.
type Codec interface {
	Name() string
	// Binary reports whether encoded batches must go out as binary frames.
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Split decodes a batch into tuples of still-encoded elements.
	Split(data []byte) ([][][]byte, error)
	IsNull(elem []byte) bool
}

// CodecByName returns "json" or "msgpack".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// JSONCodec is the default wire format.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSONCodec) Split(data []byte) ([][][]byte, error) {
	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	out := make([][][]byte, 0, len(batch))
	for _, raw := range batch {
		var tuple []json.RawMessage
		if err := json.Unmarshal(raw, &tuple); err != nil {
			return nil, err
		}
		elems := make([][]byte, len(tuple))
		for i, e := range tuple {
			elems[i] = e
		}
		out = append(out, elems)
	}
	return out, nil
}

func (JSONCodec) IsNull(elem []byte) bool {
	return len(elem) == 0 || bytes.Equal(bytes.TrimSpace(elem), []byte("null"))
}

// MsgpackCodec sends the same tuples as msgpack binary frames.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Binary() bool { return true }

func (MsgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (MsgpackCodec) Split(data []byte) ([][][]byte, error) {
	var batch [][]msgpack.RawMessage
	if err := msgpack.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	out := make([][][]byte, 0, len(batch))
	for _, tuple := range batch {
		elems := make([][]byte, len(tuple))
		for i, e := range tuple {
			elems[i] = e
		}
		out = append(out, elems)
	}
	return out, nil
}

func (MsgpackCodec) IsNull(elem []byte) bool {
	return len(elem) == 0 || (len(elem) == 1 && elem[0] == 0xc0) // nil code
}

// Raw is one still-encoded tuple element.
type Raw struct {
	data  []byte
	codec Codec
}

// Decode unmarshals the element into v.
func (r Raw) Decode(v any) error {
	if r.codec == nil || r.IsNull() {
		return errors.New("transport: empty payload")
	}
	return r.codec.Unmarshal(r.data, v)
}

// IsNull reports whether the element is absent or null.
func (r Raw) IsNull() bool {
	return r.codec == nil || r.codec.IsNull(r.data)
}

// Bytes returns the encoded element.
func (r Raw) Bytes() []byte {
	return r.data
}

// Compress packs a float coordinate into an int with two decimals.
func Compress(v float64) int {
	return int(0.5 + v*100)
}

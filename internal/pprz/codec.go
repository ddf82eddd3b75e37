package pprz

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts messages to and from bus payloads.
type Codec interface {
	Name() string
	Marshal(m *Message) ([]byte, error)
	Unmarshal(data []byte) (*Message, error)
}

// CodecByName returns the codec registered under name ("json" or "msgpack").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// JSONCodec is the default codec; it matches the payload exposed over HTTP.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

func (JSONCodec) Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// MsgpackCodec encodes fields as an ordered array of name/value pairs.
type MsgpackCodec struct{}

// msgpackWire mirrors Message so an absent or nil ac_id can be told apart
// from vehicle 0.
type msgpackWire struct {
	ACID   *int    `msgpack:"ac_id"`
	Class  string  `msgpack:"msg_class"`
	Name   string  `msgpack:"msg_name"`
	Fields []Field `msgpack:"fields"`
}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Marshal(m *Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

func (MsgpackCodec) Unmarshal(data []byte) (*Message, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	var w msgpackWire
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if w.ACID == nil {
		return nil, fmt.Errorf("%w: missing ac_id", ErrDecode)
	}
	m := Message{ACID: *w.ACID, Class: w.Class, Name: w.Name, Fields: w.Fields}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// RawJSON renders m as the JSON document exposed by the message query.
func RawJSON(m *Message) (json.RawMessage, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

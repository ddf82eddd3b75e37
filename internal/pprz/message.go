// Package pprz provides the bus message model and its wire codecs.
package pprz

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/iancoleman/orderedmap"
)

// ErrDecode marks a payload that could not be turned into a Message.
var ErrDecode = errors.New("undecodable message")

// Message classes used by the gateway.
const (
	ClassGround    = "ground"
	ClassDatalink  = "datalink"
	ClassTelemetry = "telemetry"
)

// Field is a single named message field. Fields keep their definition order.
type Field struct {
	Name  string `msgpack:"name"`
	Value any    `msgpack:"value"`
}

// Message is a bus message addressed to or sent by one aircraft.
type Message struct {
	ACID   int     `msgpack:"ac_id"`
	Class  string  `msgpack:"msg_class"`
	Name   string  `msgpack:"msg_name"`
	Fields []Field `msgpack:"fields"`
}

// New creates an empty message of the given class and name.
func New(class, name string) *Message {
	return &Message{Class: class, Name: name}
}

// Set assigns a field, replacing an existing value in place.
func (m *Message) Set(name string, value any) *Message {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			m.Fields[i].Value = value
			return m
		}
	}
	m.Fields = append(m.Fields, Field{Name: name, Value: value})
	return m
}

// Get returns the value of a field.
func (m *Message) Get(name string) (any, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Values returns the field values in definition order.
func (m *Message) Values() []any {
	out := make([]any, len(m.Fields))
	for i, f := range m.Fields {
		out[i] = f.Value
	}
	return out
}

// String renders the message the way it is traced in verbose mode.
func (m *Message) String() string {
	var sb strings.Builder
	sb.WriteString(m.Class)
	sb.WriteByte(' ')
	sb.WriteString(m.Name)
	for _, f := range m.Fields {
		fmt.Fprintf(&sb, " %s=%v", f.Name, f.Value)
	}
	return sb.String()
}

// Validate checks the identity fields every inbound message must carry.
func (m *Message) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: missing msg_name", ErrDecode)
	}
	if m.ACID < 0 {
		return fmt.Errorf("%w: negative ac_id %d", ErrDecode, m.ACID)
	}
	return nil
}

// wireMessage is the JSON form. Fields is an object whose key order is the
// field definition order. ACID is nil when ac_id is absent or null.
type wireMessage struct {
	ACID   *flexInt               `json:"ac_id"`
	Class  string                 `json:"msg_class"`
	Name   string                 `json:"msg_name"`
	Fields *orderedmap.OrderedMap `json:"fields"`
}

// MarshalJSON encodes the message with its fields in definition order.
func (m Message) MarshalJSON() ([]byte, error) {
	fields := orderedmap.New()
	fields.SetEscapeHTML(false)
	for _, f := range m.Fields {
		fields.Set(f.Name, f.Value)
	}
	acID := flexInt(m.ACID)
	return json.Marshal(wireMessage{
		ACID:   &acID,
		Class:  m.Class,
		Name:   m.Name,
		Fields: fields,
	})
}

// UnmarshalJSON decodes the JSON form, keeping field order.
func (m *Message) UnmarshalJSON(data []byte) error {
	w := wireMessage{Fields: orderedmap.New()}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ACID == nil {
		return fmt.Errorf("%w: missing ac_id", ErrDecode)
	}

	m.ACID = int(*w.ACID)
	m.Class = w.Class
	m.Name = w.Name
	m.Fields = nil
	if w.Fields != nil {
		for _, k := range w.Fields.Keys() {
			v, _ := w.Fields.Get(k)
			m.Fields = append(m.Fields, Field{Name: k, Value: plain(v)})
		}
	}
	return nil
}

// plain converts nested ordered maps into ordinary maps so decoded values
// only hold built-in types.
func plain(v any) any {
	switch t := v.(type) {
	case orderedmap.OrderedMap:
		return plainMap(&t)
	case *orderedmap.OrderedMap:
		return plainMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = plain(t[i])
		}
		return out
	}
	return v
}

func plainMap(o *orderedmap.OrderedMap) map[string]any {
	out := make(map[string]any, len(o.Keys()))
	for _, k := range o.Keys() {
		v, _ := o.Get(k)
		out[k] = plain(v)
	}
	return out
}

// flexInt handles ids that arrive either as numbers or as strings.
type flexInt int

func (f flexInt) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(f))), nil
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		i, err := strconv.Atoi(n.String())
		if err != nil {
			return fmt.Errorf("ac_id %s: %w", n, err)
		}
		*f = flexInt(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ac_id: %w", err)
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("ac_id %q: %w", s, err)
	}
	*f = flexInt(i)
	return nil
}

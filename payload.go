package ddd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Payload is an insertion ordered property bag carried by an event.
type Payload struct {
	keys   []string
	values map[string]any
}

func NewPayload() *Payload {
	return &Payload{values: make(map[string]any)}
}

// PayloadOf builds a payload from alternating key, value arguments.
func PayloadOf(keyValues ...any) *Payload {
	if len(keyValues)%2 != 0 {
		panic("PayloadOf expects key, value pairs")
	}
	p := NewPayload()
	for i := 0; i < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			panic(fmt.Sprintf("payload key %v is not a string", keyValues[i]))
		}
		p.Set(key, keyValues[i+1])
	}
	return p
}

// Set adds or replaces a property. Replacing keeps the original position.
func (p *Payload) Set(key string, value any) *Payload {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

func (p *Payload) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the property names in insertion order.
func (p *Payload) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys
}

func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Clone returns a deep copy of the payload.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	c := NewPayload()
	for _, k := range p.keys {
		c.Set(k, cloneValue(p.values[k]))
	}
	return c
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("payload property %s: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("payload must be a JSON object")
	}
	p.keys = nil
	p.values = make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected payload key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("payload property %s: %w", key, err)
		}
		p.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

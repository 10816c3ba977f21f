package imagecache

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// entries is the persisted tier: URL → data URI in insertion order.
// Updating an existing key keeps its position.
type entries struct {
	keys   []string
	values map[string]string
}

func newEntries() *entries {
	return &entries{values: make(map[string]string)}
}

func (e *entries) Get(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

func (e *entries) Set(key, value string) {
	if _, exists := e.values[key]; !exists {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

func (e *entries) Delete(key string) bool {
	if _, exists := e.values[key]; !exists {
		return false
	}
	delete(e.values, key)
	for i, k := range e.keys {
		if k == key {
			e.keys = append(e.keys[:i], e.keys[i+1:]...)
			break
		}
	}
	return true
}

func (e *entries) Len() int {
	return len(e.keys)
}

// Keys returns a copy of the keys, oldest first
func (e *entries) Keys() []string {
	return append([]string(nil), e.keys...)
}

// EvictOldest drops up to n oldest entries and returns how many were removed
func (e *entries) EvictOldest(n int) int {
	if n <= 0 {
		return 0
	}
	if n > len(e.keys) {
		n = len(e.keys)
	}
	for _, k := range e.keys[:n] {
		delete(e.values, k)
	}
	e.keys = append([]string(nil), e.keys[n:]...)
	return n
}

// MarshalJSON writes a JSON object preserving insertion order
func (e *entries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object in document order. Non-string values are skipped.
func (e *entries) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("image cache must be a JSON object, got %v", tok)
	}

	fresh := newEntries()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil || value == "" {
			continue
		}
		fresh.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*e = *fresh
	return nil
}

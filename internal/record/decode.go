package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrCorrupt is returned when a module description cannot be decoded into a
// mapping. Callers report it through the database corruption broadcast.
var ErrCorrupt = errors.New("record: corrupt module description")

// Decode reads one YAML module description and returns its top-level
// mapping.
func Decode(r io.Reader) (Map, error) {
	var raw any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, corrupt(err)
	}
	return topLevel(raw)
}

// DecodeJSON reads one JSON module description. JSON is not decoded as
// YAML because YAML rejects valid JSON escapes such as "\/".
func DecodeJSON(r io.Reader) (Map, error) {
	var raw any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, corrupt(err)
	}
	return topLevel(raw)
}

// DecodeNamed decodes data with the decoder matching name's extension:
// JSON for ".json", YAML otherwise.
func DecodeNamed(name string, data []byte) (Map, error) {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return DecodeJSON(bytes.NewReader(data))
	}
	return Decode(bytes.NewReader(data))
}

func corrupt(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: empty document", ErrCorrupt)
	}
	return fmt.Errorf("%w: %v", ErrCorrupt, err)
}

func topLevel(raw any) (Map, error) {
	m, ok := AsMap(raw)
	if !ok {
		return nil, fmt.Errorf("%w: top level is %T, want mapping", ErrCorrupt, raw)
	}
	return normalize(m).(Map), nil
}

// DecodeBytes is Decode over an in-memory YAML document.
func DecodeBytes(data []byte) (Map, error) {
	return Decode(bytes.NewReader(data))
}

// DecodeFile reads and decodes the module description at path, choosing
// the decoder by extension.
func DecodeFile(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("record: open %s: %w", path, err)
	}

	m, err := DecodeNamed(path, data)
	if err != nil {
		return nil, fmt.Errorf("record: decode %s: %w", path, err)
	}
	return m, nil
}

// Encode writes m as a YAML document with two-space indentation.
func Encode(w io.Writer, m Map) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("record: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("record: encoder close: %w", err)
	}
	return nil
}

// normalize converts nested map[any]any values to Map so consumers only
// see one mapping shape.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = normalize(child)
		}
		return val
	case map[any]any:
		if m, ok := AsMap(val); ok {
			return normalize(m)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = normalize(child)
		}
		return val
	}
	return v
}

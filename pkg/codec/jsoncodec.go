// pkg/codec/jsoncodec.go
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

type jsonStrict struct{}

var JSONStrict Codec = jsonStrict{}

func (jsonStrict) Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (jsonStrict) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	// Probe for trailing data (must be EOF)
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("json trailing content")
	}
	return nil
}

func (jsonStrict) ContentType() string { return "application/json" }

// EncodeOpaque renders an arbitrary stage value into the string form carried
// by a generated contract field. Strings pass through untouched; everything
// else is JSON.
func EncodeOpaque(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		b, err := JSONStrict.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("opaque encode: %w", err)
		}
		return string(b), nil
	}
}

// DecodeOpaque reverses EncodeOpaque: JSON objects and arrays come back as
// map[string]any / []any, anything that does not parse stays a raw string.
func DecodeOpaque(s string) any {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return s
	}
	var v any
	if err := JSONStrict.Unmarshal(trimmed, &v); err != nil {
		return s
	}
	return v
}

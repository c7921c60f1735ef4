package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
)

// Decode is the inverse of Encode: markers become Attachment values, all other
// nodes are copied structurally. Malformed markers fail with *DecodeError.
func Decode(v any) (any, error) {
	return decode(v, "$")
}

// DecodeJSON parses wire JSON and decodes it. Integral numbers become int64,
// everything else numeric becomes float64.
func DecodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &DecodeError{Path: "$", Reason: "invalid json", Err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Path: "$", Reason: "trailing data after value"}
	}
	norm, err := normalizeNumbers(raw, "$")
	if err != nil {
		return nil, err
	}
	return decode(norm, "$")
}

func decode(v any, path string) (any, error) {
	switch t := v.(type) {
	case []any:
		if t == nil {
			return []any(nil), nil
		}
		out := make([]any, len(t))
		for i, elem := range t {
			dec, err := decode(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case map[string]any:
		if t == nil {
			return map[string]any(nil), nil
		}
		if isMarker(t) {
			return decodeMarker(t, path)
		}
		out := make(map[string]any, len(t))
		for k, elem := range t {
			dec, err := decode(elem, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = dec
		}
		return out, nil
	default:
		return v, nil
	}
}

// normalizeNumbers rewrites json.Number leaves in place.
func normalizeNumbers(v any, path string) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, &DecodeError{Path: path, Reason: "invalid number", Err: err}
		}
		return f, nil
	case []any:
		for i, elem := range t {
			n, err := normalizeNumbers(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	case map[string]any:
		for k, elem := range t {
			n, err := normalizeNumbers(elem, path+"."+k)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	default:
		return v, nil
	}
}

func decodeMarker(m map[string]any, path string) (Attachment, error) {
	content, ok := m[MarkerContentKey].(string)
	if !ok {
		return Attachment{}, &DecodeError{Path: path, Reason: "marker content is not a string"}
	}

	var name string
	if raw, ok := m[MarkerNameKey]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return Attachment{}, &DecodeError{Path: path, Reason: "marker name is not a string"}
		}
		name = s
	}

	mimeType, err := markerMIME(m, path)
	if err != nil {
		return Attachment{}, err
	}

	if strings.HasPrefix(content, "data:") {
		comma := strings.IndexByte(content, ',')
		if comma < 0 {
			return Attachment{}, &DecodeError{Path: path, Reason: "data url without payload"}
		}
		meta := content[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return Attachment{}, &DecodeError{Path: path, Reason: "data url is not base64"}
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(meta, ";base64")
		}
		content = content[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return Attachment{}, &DecodeError{Path: path, Reason: "malformed base64 content", Err: err}
	}
	return Attachment{Name: name, MIMEType: mimeType, Data: data}, nil
}

func markerMIME(m map[string]any, path string) (string, error) {
	for _, key := range []string{MarkerMIMEKey, legacyMIMEKey} {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return "", &DecodeError{Path: path, Reason: "marker mime type is not a string"}
		}
		return s, nil
	}
	return "", nil
}

// Equal compares two values structurally. Numbers compare by value whatever
// their Go type, so an int sent by one peer equals the int64 the other side
// decodes. Attachments compare by name, MIME type and bytes; a nil and an
// empty byte buffer are equal.
func Equal(a, b any) bool {
	if x, ok := asNumber(a); ok {
		y, ok := asNumber(b)
		return ok && x == y
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case Attachment:
		y, ok := asAttachment(b)
		return ok && attachmentsEqual(x, y)
	case *Attachment:
		if x == nil {
			return false
		}
		y, ok := asAttachment(b)
		return ok && attachmentsEqual(*x, y)
	default:
		return reflect.DeepEqual(a, b)
	}
}

// asNumber widens any numeric leaf to float64. Integers past 2^53 may lose
// precision, matching what a JSON peer can represent.
func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asAttachment(v any) (Attachment, bool) {
	switch t := v.(type) {
	case Attachment:
		return t, true
	case *Attachment:
		if t == nil {
			return Attachment{}, false
		}
		return *t, true
	default:
		return Attachment{}, false
	}
}

func attachmentsEqual(a, b Attachment) bool {
	return a.Name == b.Name && a.MIMEType == b.MIMEType && bytes.Equal(a.Data, b.Data)
}

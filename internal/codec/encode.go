package codec

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Marker layout for binary attachments inside an encoded value.
const (
	MarkerTag        = "blob"
	MarkerTypeKey    = "__type"
	MarkerNameKey    = "name"
	MarkerMIMEKey    = "mimeType"
	MarkerContentKey = "content"

	// legacyMIMEKey is accepted on decode only.
	legacyMIMEKey = "type"
)

// Encode walks v and replaces every attachment with a base64 marker. The
// second result reports whether any attachment was found.
//
// Reading a lazy attachment is the only step that may block; it observes ctx.
func Encode(ctx context.Context, v any) (any, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	e := encoder{ctx: ctx}
	out, err := e.encode(v, "$")
	if err != nil {
		return nil, false, err
	}
	return out, e.hasBinary, nil
}

// EncodeJSON encodes v and renders the transport-safe form as JSON text.
func EncodeJSON(ctx context.Context, v any) ([]byte, bool, error) {
	out, hasBinary, err := Encode(ctx, v)
	if err != nil {
		return nil, false, err
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, false, fmt.Errorf("codec: marshal encoded value: %w", err)
	}
	return b, hasBinary, nil
}

type encoder struct {
	ctx       context.Context
	hasBinary bool
}

func (e *encoder) encode(v any, path string) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v, nil
	case float32:
		if err := checkFinite(float64(t), path); err != nil {
			return nil, err
		}
		return v, nil
	case float64:
		if err := checkFinite(t, path); err != nil {
			return nil, err
		}
		return v, nil
	case Attachment:
		return e.marker(t, path)
	case *Attachment:
		if t == nil {
			return nil, fmt.Errorf("%w: nil attachment at %s", ErrUnsupportedType, path)
		}
		return e.marker(*t, path)
	case []any:
		if t == nil {
			return []any(nil), nil
		}
		out := make([]any, len(t))
		for i, elem := range t {
			enc, err := e.encode(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		if t == nil {
			return map[string]any(nil), nil
		}
		if isMarker(t) {
			return nil, fmt.Errorf("%w: %q at %s", ErrReservedKey, MarkerTypeKey, path)
		}
		out := make(map[string]any, len(t))
		for k, elem := range t {
			enc, err := e.encode(elem, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T at %s", ErrUnsupportedType, v, path)
	}
}

func (e *encoder) marker(a Attachment, path string) (map[string]any, error) {
	data, err := a.Bytes(e.ctx)
	if err != nil {
		return nil, fmt.Errorf("codec: read attachment at %s: %w", path, err)
	}
	e.hasBinary = true
	m := map[string]any{
		MarkerTypeKey:    MarkerTag,
		MarkerMIMEKey:    a.MIMEType,
		MarkerContentKey: base64.StdEncoding.EncodeToString(data),
	}
	if a.Name != "" {
		m[MarkerNameKey] = a.Name
	}
	return m, nil
}

func isMarker(m map[string]any) bool {
	tag, ok := m[MarkerTypeKey].(string)
	return ok && tag == MarkerTag
}

package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const defaultMIMEType = "application/octet-stream"

// Data is the set of top-level shapes a synchronized value may take.
// Nested values inside maps and sequences are checked by Validate.
type Data interface {
	map[string]any | []any | string | bool | float64 | int64 | Attachment
}

// Attachment is an opaque named byte buffer embedded in a structured value.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte

	// Open supplies the bytes at encode time. When set it takes precedence over Data.
	Open func() (io.ReadCloser, error)
}

func NewAttachment(name, mimeType string, data []byte) Attachment {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = defaultMIMEType
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return Attachment{Name: name, MIMEType: mimeType, Data: buf}
}

// FileAttachment references a file on disk. The file is read lazily when the
// value is encoded, so the attachment stays cheap to submit.
func FileAttachment(path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("codec: stat attachment: %w", err)
	}
	if info.IsDir() {
		return Attachment{}, fmt.Errorf("codec: attachment %q is a directory", path)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = defaultMIMEType
	}
	return Attachment{
		Name:     info.Name(),
		MIMEType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// Bytes returns the attachment content, reading the Open source if present.
func (a Attachment) Bytes(ctx context.Context) ([]byte, error) {
	if a.Open == nil {
		return a.Data, nil
	}
	rc, err := a.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(ctxReader{ctx: ctx, r: rc})
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Validate reports whether v belongs to the closed value model accepted by
// Encode: nil, bool, string, numbers, []any, map[string]any and attachments.
func Validate(v any) error {
	return validate(v, "$")
}

func validate(v any, path string) error {
	switch t := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case float32:
		return checkFinite(float64(t), path)
	case float64:
		return checkFinite(t, path)
	case Attachment:
		return nil
	case *Attachment:
		if t == nil {
			return fmt.Errorf("%w: nil attachment at %s", ErrUnsupportedType, path)
		}
		return nil
	case []any:
		for i, elem := range t {
			if err := validate(elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		if isMarker(t) {
			return fmt.Errorf("%w: %q at %s", ErrReservedKey, MarkerTypeKey, path)
		}
		for k, elem := range t {
			if err := validate(elem, path+"."+k); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %T at %s", ErrUnsupportedType, v, path)
	}
}

func checkFinite(f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("%w: non-finite number at %s", ErrUnsupportedType, path)
	}
	return nil
}

package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/statewarp/internal/testutil/testlog"
)

func TestRoundTripNestedValueWithAttachments(t *testing.T) {
	testlog.Start(t)
	in := map[string]any{
		"title": "notes",
		"count": 3,
		"ratio": 0.5,
		"ok":    true,
		"none":  nil,
		"tags":  []any{"a", "b", []any{}},
		"files": []any{
			NewAttachment("a.png", "image/png", []byte{1, 2, 3}),
			map[string]any{
				"deep": map[string]any{
					"blob": &Attachment{MIMEType: "text/plain", Data: []byte("hi")},
				},
			},
		},
		"empty": map[string]any{},
	}

	enc, hasBinary, err := Encode(context.Background(), in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !hasBinary {
		t.Fatalf("expected containsBinary=true")
	}
	out, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equal(in, out) {
		t.Fatalf("round-trip mismatch:\n in=%#v\nout=%#v", in, out)
	}
}

func TestRoundTripPrimitivesWithoutBinary(t *testing.T) {
	testlog.Start(t)
	for _, v := range []any{nil, "x", true, int64(7), 1.25, []any{}, map[string]any{"k": []any{nil}}} {
		enc, hasBinary, err := Encode(context.Background(), v)
		if err != nil {
			t.Fatalf("encode %#v: %v", v, err)
		}
		if hasBinary {
			t.Fatalf("unexpected containsBinary for %#v", v)
		}
		out, err := Decode(enc)
		if err != nil {
			t.Fatalf("decode %#v: %v", v, err)
		}
		if !Equal(v, out) {
			t.Fatalf("mismatch: in=%#v out=%#v", v, out)
		}
	}
}

func TestRoundTripArbitraryDepth(t *testing.T) {
	testlog.Start(t)
	var v any = NewAttachment("leaf.bin", "application/octet-stream", []byte{0xff, 0x00})
	for i := 0; i < 2000; i++ {
		if i%2 == 0 {
			v = []any{v}
		} else {
			v = map[string]any{"n": v}
		}
	}
	enc, hasBinary, err := Encode(context.Background(), v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !hasBinary {
		t.Fatalf("expected binary at depth")
	}
	out, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equal(v, out) {
		t.Fatalf("deep round-trip mismatch")
	}
}

func TestAttachmentMarkerShape(t *testing.T) {
	testlog.Start(t)
	enc, _, err := Encode(context.Background(), map[string]any{
		"image": NewAttachment("a.png", "image/png", []byte{1, 2, 3}),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	marker, ok := enc.(map[string]any)["image"].(map[string]any)
	if !ok {
		t.Fatalf("expected marker map, got %#v", enc)
	}
	if marker[MarkerTypeKey] != MarkerTag || marker[MarkerNameKey] != "a.png" || marker[MarkerMIMEKey] != "image/png" {
		t.Fatalf("unexpected marker: %#v", marker)
	}
	if marker[MarkerContentKey] != "AQID" {
		t.Fatalf("unexpected content: %#v", marker[MarkerContentKey])
	}

	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	att, ok := dec.(map[string]any)["image"].(Attachment)
	if !ok {
		t.Fatalf("expected attachment, got %#v", dec)
	}
	if att.Name != "a.png" || att.MIMEType != "image/png" || !bytes.Equal(att.Data, []byte{1, 2, 3}) {
		t.Fatalf("unexpected attachment: %+v", att)
	}
}

func TestEncodeJSONDecodeJSONNormalizesNumbers(t *testing.T) {
	testlog.Start(t)
	b, hasBinary, err := EncodeJSON(context.Background(), map[string]any{
		"count": 5,
		"ratio": 0.25,
		"file":  NewAttachment("", "text/plain", []byte("abc")),
	})
	if err != nil {
		t.Fatalf("encode json: %v", err)
	}
	if !hasBinary {
		t.Fatalf("expected binary flag")
	}
	out, err := DecodeJSON(b)
	if err != nil {
		t.Fatalf("decode json: %v", err)
	}
	m := out.(map[string]any)
	if m["count"] != int64(5) {
		t.Fatalf("expected int64 count, got %#v", m["count"])
	}
	if m["ratio"] != 0.25 {
		t.Fatalf("expected float ratio, got %#v", m["ratio"])
	}
	att := m["file"].(Attachment)
	if att.Name != "" || string(att.Data) != "abc" {
		t.Fatalf("unexpected attachment: %+v", att)
	}
}

func TestDecodeMalformedBase64(t *testing.T) {
	testlog.Start(t)
	_, err := Decode(map[string]any{
		"x": map[string]any{MarkerTypeKey: MarkerTag, MarkerMIMEKey: "image/png", MarkerContentKey: "!!not-base64!!"},
	})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
	if de.Path != "$.x" {
		t.Fatalf("unexpected path: %q", de.Path)
	}
}

func TestDecodeMarkerWithoutStringContent(t *testing.T) {
	testlog.Start(t)
	_, err := Decode(map[string]any{MarkerTypeKey: MarkerTag, MarkerContentKey: 12})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeAcceptsDataURLContent(t *testing.T) {
	testlog.Start(t)
	out, err := Decode(map[string]any{
		MarkerTypeKey:    MarkerTag,
		MarkerNameKey:    "foo.txt",
		legacyMIMEKey:    "text/plain",
		MarkerContentKey: "data:text/plain;base64,Zm9v",
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	att := out.(Attachment)
	if att.Name != "foo.txt" || att.MIMEType != "text/plain" || string(att.Data) != "foo" {
		t.Fatalf("unexpected attachment: %+v", att)
	}
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeJSON([]byte(`{"a":1} {"b":2}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestEncodeRejectsUnsupportedTypes(t *testing.T) {
	testlog.Start(t)
	type custom struct{ A int }
	for _, v := range []any{
		custom{A: 1},
		map[string]any{"x": []string{"a"}},
		map[string]any{"x": func() {}},
		[]any{map[int]any{1: "a"}},
	} {
		if _, _, err := Encode(context.Background(), v); !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("expected ErrUnsupportedType for %T, got %v", v, err)
		}
		if err := Validate(v); !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("validate: expected ErrUnsupportedType for %T, got %v", v, err)
		}
	}
}

func TestEncodeRejectsReservedMarkerKey(t *testing.T) {
	testlog.Start(t)
	v := map[string]any{"user": map[string]any{MarkerTypeKey: MarkerTag}}
	if _, _, err := Encode(context.Background(), v); !errors.Is(err, ErrReservedKey) {
		t.Fatalf("expected ErrReservedKey, got %v", err)
	}
	if err := Validate(v); !errors.Is(err, ErrReservedKey) {
		t.Fatalf("validate: expected ErrReservedKey, got %v", err)
	}
}

func TestFileAttachmentReadsLazily(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "a.png")
	if err := os.WriteFile(path, []byte{9, 8, 7}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	att, err := FileAttachment(path)
	if err != nil {
		t.Fatalf("file attachment: %v", err)
	}
	if att.Name != "a.png" || att.MIMEType != "image/png" {
		t.Fatalf("unexpected attachment metadata: %+v", att)
	}
	enc, _, err := Encode(context.Background(), att)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := out.(Attachment); !bytes.Equal(got.Data, []byte{9, 8, 7}) {
		t.Fatalf("unexpected bytes: %v", got.Data)
	}
}

func TestEncodeHonorsCanceledContextOnLazyRead(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	att := Attachment{
		Name:     "slow.bin",
		MIMEType: "application/octet-stream",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte{1})), nil
		},
	}
	if _, _, err := Encode(ctx, att); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEncodedFormIsJSONSafe(t *testing.T) {
	testlog.Start(t)
	enc, _, err := Encode(context.Background(), []any{NewAttachment("b", "x/y", []byte{0, 1, 2, 254, 255})})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := json.Marshal(enc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := DecodeJSON(b)
	if err != nil {
		t.Fatalf("decode json: %v", err)
	}
	got := out.([]any)[0].(Attachment)
	if !bytes.Equal(got.Data, []byte{0, 1, 2, 254, 255}) {
		t.Fatalf("unexpected bytes: %v", got.Data)
	}
}

func TestEqualComparesNumbersAcrossWireTypes(t *testing.T) {
	testlog.Start(t)
	in := map[string]any{"count": 5.0, "n": 3, "u": uint8(2), "ratio": 0.25}
	b, _, err := EncodeJSON(context.Background(), in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeJSON(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := out.(map[string]any)["count"]; got != int64(5) {
		t.Fatalf("expected whole float to decode as int64, got %#v", got)
	}
	if !Equal(in, out) || !Equal(out, in) {
		t.Fatalf("expected numeric equality across wire types: in=%#v out=%#v", in, out)
	}
	if Equal(int64(1), 1.5) || Equal(1, "1") || Equal("1", 1) || Equal(json.Number("2"), 3) {
		t.Fatalf("distinct values compared equal")
	}
}

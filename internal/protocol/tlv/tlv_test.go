package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		String(1, "SYNC"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b := EncodeFields(in)
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestTypedGetters(t *testing.T) {
	fields := []Field{String(1, "SYNC"), U64(2, 77), Bool(3, true)}
	decoded, err := DecodeFields(EncodeFields(fields))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s, err := GetString(decoded, 1); err != nil || s != "SYNC" {
		t.Fatalf("GetString got=%q err=%v", s, err)
	}
	if v, err := GetU64(decoded, 2); err != nil || v != 77 {
		t.Fatalf("GetU64 got=%d err=%v", v, err)
	}
	if b, err := GetBool(decoded, 3); err != nil || !b {
		t.Fatalf("GetBool got=%v err=%v", b, err)
	}
	if b, err := GetBool(decoded, 4); err != nil || b {
		t.Fatalf("absent bool should be false, got=%v err=%v", b, err)
	}
	if _, err := GetU64(decoded, 9); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := GetString(decoded, 2); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

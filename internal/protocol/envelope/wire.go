package envelope

import (
	"fmt"

	"github.com/danmuck/statewarp/internal/protocol/schema"
	"github.com/danmuck/statewarp/internal/protocol/tlv"
)

// Marshal renders env as tlv fields.
func Marshal(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldKind, env.Kind),
		tlv.U64(schema.FieldSeq, env.Seq),
		tlv.Bytes(schema.FieldPayload, env.Payload),
		tlv.Bool(schema.FieldHasBinary, env.HasBinary),
	}
	if env.SentAtMS != 0 {
		fields = append(fields, tlv.U64(schema.FieldSentAtMS, env.SentAtMS))
	}
	if err := schema.Validate(env.Kind, fields); err != nil {
		return nil, err
	}
	return tlv.EncodeFields(fields), nil
}

// Unmarshal parses one envelope. Envelopes of an unknown kind are returned
// with only Kind set so the receiver can ignore them.
func Unmarshal(b []byte) (Envelope, error) {
	fields, err := tlv.DecodeFields(b)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind, err := tlv.GetString(fields, schema.FieldKind)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !schema.Known(kind) {
		return Envelope{Kind: kind}, nil
	}
	if err := schema.Validate(kind, fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	env := Envelope{Kind: kind}
	if env.Seq, err = tlv.GetU64(fields, schema.FieldSeq); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	payload, _ := tlv.GetField(fields, schema.FieldPayload)
	env.Payload = payload.Value
	if env.HasBinary, err = tlv.GetBool(fields, schema.FieldHasBinary); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, ok := tlv.GetField(fields, schema.FieldSentAtMS); ok {
		if env.SentAtMS, err = tlv.GetU64(fields, schema.FieldSentAtMS); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env, nil
}

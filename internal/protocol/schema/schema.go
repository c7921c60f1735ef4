package schema

import (
	"fmt"

	"github.com/danmuck/statewarp/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Envelope kinds.
const (
	KindSync = "SYNC"
)

// Field IDs shared by every envelope kind.
const (
	FieldKind      uint16 = 1
	FieldSeq       uint16 = 2
	FieldSentAtMS  uint16 = 3
	FieldPayload   uint16 = 100
	FieldHasBinary uint16 = 101
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	Kind    string
	FieldID uint16
	Reason  string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: kind=%q: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("schema: kind=%q field=%d: %s", e.Kind, e.FieldID, e.Reason)
}

var requirements = map[string][]Requirement{
	KindSync: {
		{FieldKind, tlv.TypeString},
		{FieldSeq, tlv.TypeU64},
		{FieldPayload, tlv.TypeBytes},
	},
}

// Known reports whether kind has a registered field contract.
func Known(kind string) bool {
	_, ok := requirements[kind]
	return ok
}

// Validate enforces required fields and required field types for an envelope kind.
// Unknown fields are ignored.
func Validate(kind string, fields []tlv.Field) error {
	reqs, ok := requirements[kind]
	if !ok {
		log.Debug().Str("kind", kind).Msg("schema.Validate unknown kind")
		return ValidationError{Kind: kind, Reason: "unknown kind"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().Str("kind", kind).Uint16("field_id", req.ID).Msg("schema.Validate missing field")
			return ValidationError{Kind: kind, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Str("kind", kind).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{Kind: kind, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}

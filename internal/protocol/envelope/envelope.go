package envelope

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/statewarp/internal/codec"
	"github.com/danmuck/statewarp/internal/protocol/schema"
)

const KindSync = schema.KindSync

var (
	ErrInvalidEnvelope = errors.New("envelope: invalid envelope")
	ErrMalformed       = errors.New("envelope: malformed wire data")
)

// Envelope is the unit exchanged between peers. Payload holds the
// codec-encoded value as JSON text.
type Envelope struct {
	Kind      string
	Seq       uint64
	Payload   []byte
	HasBinary bool
	SentAtMS  uint64
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Kind) == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidEnvelope)
	}
	if e.Kind == KindSync {
		if e.Seq == 0 {
			return fmt.Errorf("%w: missing seq", ErrInvalidEnvelope)
		}
		if len(e.Payload) == 0 {
			return fmt.Errorf("%w: missing payload", ErrInvalidEnvelope)
		}
	}
	return nil
}

// NewSync encodes v through the codec into a SYNC envelope. Encoding may block
// while attachment sources are read.
func NewSync(ctx context.Context, seq uint64, v any) (Envelope, error) {
	payload, hasBinary, err := codec.EncodeJSON(ctx, v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Kind:      KindSync,
		Seq:       seq,
		Payload:   payload,
		HasBinary: hasBinary,
		SentAtMS:  uint64(time.Now().UnixMilli()),
	}, nil
}

// Value decodes the payload back into a structured value.
func (e Envelope) Value() (any, error) {
	return codec.DecodeJSON(e.Payload)
}

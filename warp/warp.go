package warp

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/statewarp/internal/codec"
	"github.com/danmuck/statewarp/internal/link"
	"github.com/danmuck/statewarp/internal/session"
)

var (
	ErrTypeMismatch = errors.New("warp: value does not match session type")
	ErrNoIdentity   = errors.New("warp: local identity not yet assigned")
)

// Session is a typed handle on a running synchronization session.
type Session[T Data] struct {
	s *session.Session
}

// Start runs a session over peer, which the session owns from now on.
func Start[T Data](ctx context.Context, peer Peer, initial T, opts Options[T]) (*Session[T], error) {
	cfg := session.Config{
		Target:   opts.Target,
		OnStatus: opts.OnStatus,
		Logger:   opts.Logger,
		Accept: func(v any) (any, error) {
			t, err := As[T](v)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
	}
	if opts.OnSync != nil {
		onSync := opts.OnSync
		cfg.OnSync = func(v any) {
			t, _ := v.(T)
			onSync(t)
		}
	}
	s, err := session.Start(ctx, peer, initial, cfg)
	if err != nil {
		return nil, err
	}
	return &Session[T]{s: s}, nil
}

// As converts a decoded value to T. Whole numbers decode as int64, so an
// int64 is accepted where T is float64; nil is accepted for maps and slices.
func As[T Data](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var zero T
	switch any(zero).(type) {
	case float64:
		if i, ok := v.(int64); ok {
			return any(float64(i)).(T), nil
		}
	case map[string]any, []any:
		if v == nil {
			return zero, nil
		}
	case Attachment:
		if p, ok := v.(*Attachment); ok && p != nil {
			return any(*p).(T), nil
		}
	}
	return zero, fmt.Errorf("%w: got %T, want %T", ErrTypeMismatch, v, zero)
}

func (s *Session[T]) Data() T {
	t, _ := s.s.Data().(T)
	return t
}

func (s *Session[T]) Status() Status {
	return s.s.Status()
}

func (s *Session[T]) Err() error {
	return s.s.Err()
}

func (s *Session[T]) LocalID() string {
	return s.s.LocalID()
}

func (s *Session[T]) RemoteID() string {
	return s.s.RemoteID()
}

func (s *Session[T]) Role() Role {
	return s.s.Role()
}

func (s *Session[T]) IsHost() bool {
	return s.s.IsHost()
}

func (s *Session[T]) State() State[T] {
	st := s.s.State()
	t, _ := st.Data.(T)
	return State[T]{
		Data:     t,
		Status:   st.Status,
		LocalID:  st.LocalID,
		RemoteID: st.RemoteID,
		Err:      st.Err,
	}
}

// Submit replaces the local value and sends it to the peer when connected.
// Nested values outside the codec's model are rejected.
func (s *Session[T]) Submit(v T) error {
	return s.s.Submit(v)
}

// Link returns the bootstrap address "<base>?session=<LocalID>".
func (s *Session[T]) Link(base string) (string, error) {
	id := s.s.LocalID()
	if id == "" {
		return "", ErrNoIdentity
	}
	return link.Build(base, id)
}

// Done is closed once the session's event loop has exited.
func (s *Session[T]) Done() <-chan struct{} {
	return s.s.Done()
}

func (s *Session[T]) Close() error {
	return s.s.Close()
}

// Equal compares two session values structurally. Numbers compare by value,
// so a locally submitted int equals the int64 a peer decodes.
func Equal(a, b any) bool {
	return codec.Equal(a, b)
}

// ParseLink extracts the host identity from a bootstrap link.
func ParseLink(raw string) (string, error) {
	return link.Parse(raw)
}

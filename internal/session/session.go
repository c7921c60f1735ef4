package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/statewarp/internal/codec"
	"github.com/danmuck/statewarp/internal/observability"
	"github.com/danmuck/statewarp/internal/protocol/envelope"
	"github.com/danmuck/statewarp/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session synchronizes one state value with a single remote peer.
type Session struct {
	cfg    Config
	role   Role
	target string
	peer   transport.Peer
	log    zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	loopDone  chan struct{}
	closeDone chan struct{}
	closeErr  error
	alive     atomic.Bool
	observers *observerQueue

	seq     *envelope.Sequencer
	encoded chan envelope.Pending

	mu          sync.RWMutex
	data        any
	status      Status
	localID     string
	remoteID    string
	err         error
	conn        transport.Conn
	nextSeq     uint64
	lastApplied uint64
	closed      bool
}

// Start validates initial, decides the role from cfg.Target and registers the
// local identity with peer. The session owns peer from here on and closes it
// in Close. Cancelling ctx closes the session.
//
// A fatal failure to register the identity does not fail Start; the session
// is returned in StatusDisconnected with Err set.
func Start(ctx context.Context, peer transport.Peer, initial any, cfg Config) (*Session, error) {
	if peer == nil {
		return nil, ErrNilPeer
	}
	if err := codec.Validate(initial); err != nil {
		return nil, fmt.Errorf("session: initial value: %w", err)
	}

	role := RoleHost
	target := strings.TrimSpace(cfg.Target)
	if target != "" {
		role = RoleClient
	}
	logger := observability.Component("session")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		cfg:     cfg,
		role:    role,
		target:  target,
		peer:    peer,
		log:     logger.With().Str("role", role.String()).Logger(),
		ctx:     sctx,
		cancel:  cancel,
		loopDone:  make(chan struct{}),
		closeDone: make(chan struct{}),
		observers: newObserverQueue(),
		seq:     envelope.NewSequencer(1),
		encoded: make(chan envelope.Pending),
		data:    initial,
		status:  StatusConnecting,
	}
	s.alive.Store(true)
	observability.RecordStatus(role.String(), StatusConnecting.String())

	// Hosts pick their identity; clients let the transport assign one.
	id := ""
	if role == RoleHost {
		id = uuid.NewString()
	}
	if err := peer.Start(sctx, id); err != nil {
		s.log.Warn().Err(err).Msg("session.Start identity registration failed")
		s.mu.Lock()
		s.err = &TransportError{Op: "start", Fatal: true, Err: err}
		changed := s.setStatusLocked(StatusDisconnected)
		s.mu.Unlock()
		if changed {
			s.notifyStatus(StatusDisconnected)
		}
	}

	go s.run(peer.Events())
	context.AfterFunc(sctx, func() { _ = s.Close() })
	s.log.Debug().Str("target", target).Msg("session.Start running")
	return s, nil
}

func (s *Session) Role() Role {
	return s.role
}

func (s *Session) IsHost() bool {
	return s.role == RoleHost
}

// Target is the identity a client connects to; empty for hosts.
func (s *Session) Target() string {
	return s.target
}

func (s *Session) Data() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) LocalID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localID
}

func (s *Session) RemoteID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteID
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Data:     s.data,
		Status:   s.status,
		LocalID:  s.localID,
		RemoteID: s.remoteID,
		Err:      s.err,
	}
}

// Submit replaces local data with v immediately. When connected, v is encoded
// in the background and sent as the next SYNC; otherwise it stays local.
// Callers must not mutate v after submitting it.
func (s *Session) Submit(v any) error {
	if err := codec.Validate(v); err != nil {
		return fmt.Errorf("session: submit: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.data = v
	if s.status == StatusConnected && s.conn != nil {
		s.enqueueLocked(v)
	}
	return nil
}

// Close tears down the connection and the transport, then waits for the
// event loop to exit. In-flight encodes are left to finish; their results are
// discarded. Close is idempotent and safe to call from an observer.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.closeDone
		return s.closeErr
	}
	s.closed = true
	s.alive.Store(false)
	conn := s.conn
	s.conn = nil
	changed := s.setStatusLocked(StatusDisconnected)
	s.mu.Unlock()
	if changed {
		s.notifyStatus(StatusDisconnected)
	}

	s.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	s.closeErr = s.peer.Close()
	<-s.loopDone
	s.observers.close()
	close(s.closeDone)
	s.log.Debug().Msg("session.Close done")
	return s.closeErr
}

// Done is closed once the event loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.loopDone
}

// enqueueLocked allocates the next outbound seq for v and encodes it in the
// background. Callers hold s.mu.
func (s *Session) enqueueLocked(v any) {
	s.nextSeq++
	go s.encode(s.nextSeq, v)
}

// setStatusLocked reports whether the status changed. Callers hold s.mu.
func (s *Session) setStatusLocked(st Status) bool {
	if s.status == st {
		return false
	}
	s.log.Info().Str("from", s.status.String()).Str("to", st.String()).Msg("session status")
	s.status = st
	observability.RecordStatus(s.role.String(), st.String())
	return true
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
}

// notifyStatus and notifySync queue observer calls in event order.
func (s *Session) notifyStatus(st Status) {
	if s.cfg.OnStatus == nil {
		return
	}
	s.observers.push(func() { s.cfg.OnStatus(st) })
}

func (s *Session) notifySync(v any) {
	if s.cfg.OnSync == nil {
		return
	}
	s.observers.push(func() { s.cfg.OnSync(v) })
}

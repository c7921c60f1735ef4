package session

import (
	"time"

	"github.com/danmuck/statewarp/internal/observability"
	"github.com/danmuck/statewarp/internal/protocol/envelope"
	"github.com/danmuck/statewarp/internal/transport"
)

// run is the single consumer of transport events and encode completions.
func (s *Session) run(events <-chan transport.Event) {
	defer close(s.loopDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				s.onTransportGone()
				continue
			}
			if !s.alive.Load() {
				continue
			}
			s.handleEvent(ev)
		case p := <-s.encoded:
			ready := s.seq.Put(p)
			held := s.seq.Len()
			observability.SetHeldEncodes(s.role.String(), held)
			if len(ready) == 0 {
				s.log.Debug().Uint64("seq", p.Seq).Uint64("waiting_for", s.seq.Next()).Int("held", held).Msg("session holding encoded envelope")
			}
			for _, item := range ready {
				if !s.alive.Load() {
					return
				}
				s.release(item)
			}
		}
	}
}

func (s *Session) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventIdentity:
		s.onIdentity(ev.ID)
	case transport.EventInbound:
		s.onInbound(ev.Conn)
	case transport.EventOpen:
		s.onOpen(ev.Conn)
	case transport.EventData:
		s.onData(ev.Conn, ev.Data)
	case transport.EventClose:
		s.onClose(ev.Conn, ev.Err)
	case transport.EventError:
		s.onError(ev)
	default:
		s.log.Debug().Str("kind", ev.Kind.String()).Msg("session ignoring transport event")
	}
}

func (s *Session) onIdentity(id string) {
	s.mu.Lock()
	if s.closed || s.status == StatusDisconnected {
		s.mu.Unlock()
		return
	}
	s.localID = id
	changed := false
	if s.role == RoleHost && s.conn == nil {
		changed = s.setStatusLocked(StatusIdle)
	}
	s.mu.Unlock()
	s.log.Info().Str("local_id", id).Msg("session identity acquired")
	if changed {
		s.notifyStatus(StatusIdle)
	}
	if s.role == RoleClient {
		s.connect()
	}
}

func (s *Session) connect() {
	s.mu.Lock()
	changed := s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()
	if changed {
		s.notifyStatus(StatusConnecting)
	}

	conn, err := s.peer.Connect(s.ctx, s.target)
	if err != nil {
		s.log.Warn().Err(err).Str("target", s.target).Msg("session connect failed")
		s.disconnect(&TransportError{Op: "connect", Fatal: true, Err: err})
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()
}

func (s *Session) onInbound(conn transport.Conn) {
	s.mu.Lock()
	refuse := s.role != RoleHost || s.closed || s.status == StatusDisconnected || s.conn != nil
	if !refuse {
		s.conn = conn
	}
	s.mu.Unlock()
	if refuse {
		s.log.Warn().Str("remote_id", conn.RemoteID()).Msg("session refusing inbound connection")
		_ = conn.Close()
		return
	}
	s.log.Info().Str("remote_id", conn.RemoteID()).Msg("session accepted inbound connection")
}

func (s *Session) onOpen(conn transport.Conn) {
	s.mu.Lock()
	if s.closed || conn == nil || conn != s.conn {
		s.mu.Unlock()
		return
	}
	s.remoteID = conn.RemoteID()
	changed := s.setStatusLocked(StatusConnected)
	if s.role == RoleHost {
		// Bootstrap the client from live data, not the initial value.
		s.enqueueLocked(s.data)
	}
	s.mu.Unlock()
	if changed {
		s.notifyStatus(StatusConnected)
	}
}

func (s *Session) onData(conn transport.Conn, b []byte) {
	role := s.role.String()
	s.mu.RLock()
	current := s.conn == conn && s.status == StatusConnected && !s.closed
	s.mu.RUnlock()
	if !current {
		observability.RecordEnvelopeReceived(role, observability.OutcomeIgnored)
		return
	}

	env, err := envelope.Unmarshal(b)
	if err != nil {
		observability.RecordEnvelopeReceived(role, observability.OutcomeMalformed)
		s.log.Warn().Err(err).Msg("session dropping malformed envelope")
		s.setErr(&CodecError{Err: err})
		return
	}
	if env.Kind != envelope.KindSync {
		observability.RecordEnvelopeReceived(role, observability.OutcomeIgnored)
		s.log.Debug().Str("kind", env.Kind).Msg("session ignoring envelope kind")
		return
	}

	s.mu.RLock()
	stale := env.Seq <= s.lastApplied
	s.mu.RUnlock()
	if stale {
		observability.RecordEnvelopeReceived(role, observability.OutcomeStale)
		s.log.Debug().Uint64("seq", env.Seq).Msg("session dropping stale envelope")
		return
	}

	v, err := env.Value()
	if err == nil && s.cfg.Accept != nil {
		v, err = s.cfg.Accept(v)
	}
	if err != nil {
		observability.RecordEnvelopeReceived(role, observability.OutcomeMalformed)
		s.log.Warn().Err(err).Uint64("seq", env.Seq).Msg("session dropping undecodable envelope")
		s.setErr(&CodecError{Seq: env.Seq, Err: err})
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.lastApplied = env.Seq
	s.data = v
	s.mu.Unlock()
	observability.RecordEnvelopeReceived(role, observability.OutcomeApplied)
	if env.SentAtMS != 0 {
		observability.ObserveSyncLag(role, time.Since(time.UnixMilli(int64(env.SentAtMS))))
	}
	s.log.Debug().Uint64("seq", env.Seq).Bool("binary", env.HasBinary).Msg("session applied sync")
	s.notifySync(v)
}

func (s *Session) onClose(conn transport.Conn, cause error) {
	s.mu.RLock()
	current := conn != nil && conn == s.conn
	s.mu.RUnlock()
	if !current {
		return
	}
	var err error
	if cause != nil {
		err = &TransportError{Op: "receive", Fatal: true, Err: cause}
	}
	s.log.Info().Err(cause).Msg("session connection closed")
	s.disconnect(err)
}

func (s *Session) onError(ev transport.Event) {
	s.mu.RLock()
	stale := ev.Conn != nil && ev.Conn != s.conn
	s.mu.RUnlock()
	if stale {
		return
	}
	terr := &TransportError{Op: "transport", Fatal: ev.Fatal, Err: ev.Err}
	if ev.Fatal {
		s.log.Warn().Err(ev.Err).Msg("session fatal transport error")
		s.disconnect(terr)
		return
	}
	s.log.Warn().Err(ev.Err).Msg("session transport error")
	s.setErr(terr)
}

// onTransportGone handles the event stream closing underneath the session.
func (s *Session) onTransportGone() {
	if !s.alive.Load() {
		return
	}
	s.disconnect(&TransportError{Op: "transport", Fatal: true, Err: transport.ErrClosed})
}

// disconnect drops the current connection and enters StatusDisconnected.
// A nil err leaves the previous error in place.
func (s *Session) disconnect(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	if err != nil {
		s.err = err
	}
	changed := s.setStatusLocked(StatusDisconnected)
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if changed {
		s.notifyStatus(StatusDisconnected)
	}
}

// encode runs off the loop. Its result is posted only while the session lives.
func (s *Session) encode(seq uint64, v any) {
	start := time.Now()
	item := envelope.Pending{Seq: seq, QueuedAt: start}
	env, err := envelope.NewSync(s.ctx, seq, v)
	if err == nil {
		item.Wire, err = envelope.Marshal(env)
		observability.ObserveEncode(env.HasBinary, time.Since(start))
	}
	item.Err = err
	if !s.alive.Load() {
		return
	}
	select {
	case s.encoded <- item:
	case <-s.ctx.Done():
	}
}

// release sends one encoded envelope if the connection is still open.
func (s *Session) release(p envelope.Pending) {
	if p.Err != nil {
		s.log.Warn().Err(p.Err).Uint64("seq", p.Seq).Msg("session encode failed")
		s.setErr(&SubmitError{Seq: p.Seq, Err: p.Err})
		return
	}
	s.mu.RLock()
	conn := s.conn
	open := s.status == StatusConnected && !s.closed
	s.mu.RUnlock()
	if conn == nil || !open {
		s.log.Debug().Uint64("seq", p.Seq).Msg("session dropping envelope, no open connection")
		return
	}
	if err := conn.Send(p.Wire); err != nil {
		s.log.Warn().Err(err).Uint64("seq", p.Seq).Msg("session send failed")
		s.setErr(&SubmitError{Seq: p.Seq, Err: err})
		return
	}
	observability.RecordEnvelopeSent(s.role.String())
	if !p.QueuedAt.IsZero() {
		observability.ObserveSendDelay(s.role.String(), time.Since(p.QueuedAt))
	}
	s.log.Debug().Uint64("seq", p.Seq).Int("bytes", len(p.Wire)).Msg("session sent sync")
}

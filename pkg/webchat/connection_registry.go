package webchat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/topicchat/pkg/metrics"
	"github.com/go-go-golems/topicchat/pkg/protocol"
	"github.com/go-go-golems/topicchat/pkg/session"
)

const (
	defaultSendBuffer   = 1024
	defaultWriteTimeout = 10 * time.Second
)

// wsConn is the write side of a websocket connection.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnectionRegistry tracks live client connections and their sessions.
// Each connection gets a writer goroutine fed by a bounded buffer so frames
// reach the socket in the order they were sent.
type ConnectionRegistry struct {
	sessions *session.Store

	mu    sync.RWMutex
	conns map[string]*clientConn

	sendBuffer   int
	writeTimeout time.Duration
	newID        func() string
}

type clientConn struct {
	id     string
	conn   wsConn
	send   chan outbound
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type outbound struct {
	data      []byte
	frameType string
	// closeAfter shuts the connection down once data has been written.
	closeAfter bool
}

type RegistryOption func(*ConnectionRegistry)

func WithSendBuffer(n int) RegistryOption {
	return func(r *ConnectionRegistry) {
		if n > 0 {
			r.sendBuffer = n
		}
	}
}

// WithWriteTimeout sets the per-frame write deadline. Zero disables deadlines.
func WithWriteTimeout(d time.Duration) RegistryOption {
	return func(r *ConnectionRegistry) {
		if d >= 0 {
			r.writeTimeout = d
		}
	}
}

func WithConnectionIDGenerator(f func() string) RegistryOption {
	return func(r *ConnectionRegistry) {
		if f != nil {
			r.newID = f
		}
	}
}

func NewConnectionRegistry(sessions *session.Store, opts ...RegistryOption) *ConnectionRegistry {
	r := &ConnectionRegistry{
		sessions:     sessions,
		conns:        map[string]*clientConn{},
		sendBuffer:   defaultSendBuffer,
		writeTimeout: defaultWriteTimeout,
		newID:        uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *ConnectionRegistry) Sessions() *session.Store { return r.sessions }

// Register stores the connection under a fresh id and creates its empty session.
// The returned context is cancelled once the connection is unregistered.
func (r *ConnectionRegistry) Register(conn wsConn) (string, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	cc := &clientConn{
		conn:   conn,
		send:   make(chan outbound, r.sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	id := r.newID()
	for r.idTaken(id) {
		id = r.newID()
	}
	cc.id = id
	r.conns[id] = cc
	r.sessions.CreateSession(id)
	r.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	go r.writeLoop(cc)
	log.Info().Str("component", "webchat").Str("client_id", id).Msg("client connected")
	return id, ctx
}

// idTaken reports whether id belongs to a live connection or a leftover session.
// Callers hold r.mu.
func (r *ConnectionRegistry) idTaken(id string) bool {
	if _, ok := r.conns[id]; ok {
		return true
	}
	return r.sessions.HasSession(id)
}

// Unregister removes the connection and its session. Unknown ids are ignored.
func (r *ConnectionRegistry) Unregister(id string) {
	r.mu.Lock()
	cc, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		r.sessions.DeleteSession(id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	metrics.ConnectionsActive.Dec()
	cc.cancel()
	_ = cc.conn.Close()
	log.Info().Str("component", "webchat").Str("client_id", id).Msg("client disconnected")
}

// SendTo queues a frame for one connection. Failures are logged, never returned;
// the result only reports whether the frame was queued.
func (r *ConnectionRegistry) SendTo(id string, frame protocol.Frame) bool {
	return r.enqueue(id, frame, false)
}

// SendAndClose queues a final frame and closes the connection after writing it.
func (r *ConnectionRegistry) SendAndClose(id string, frame protocol.Frame) {
	if !r.enqueue(id, frame, true) {
		r.Unregister(id)
	}
}

// Broadcast queues a frame for every live connection.
func (r *ConnectionRegistry) Broadcast(frame protocol.Frame) int {
	data, err := frame.Marshal()
	if err != nil {
		metrics.SendFailures.WithLabelValues("marshal").Inc()
		log.Error().Err(err).Str("component", "webchat").Str("frame_type", frame.Type).Msg("broadcast marshal failed")
		return 0
	}
	r.mu.RLock()
	targets := make([]*clientConn, 0, len(r.conns))
	for _, cc := range r.conns {
		targets = append(targets, cc)
	}
	r.mu.RUnlock()

	n := 0
	for _, cc := range targets {
		if r.push(cc, outbound{data: data, frameType: frame.Type}) {
			n++
		}
	}
	return n
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *ConnectionRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

func (r *ConnectionRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

// WaitWriterDone blocks until the connection's writer has exited or the timeout
// elapses. Used to let a final frame queued by SendAndClose reach the socket.
func (r *ConnectionRegistry) WaitWriterDone(id string, timeout time.Duration) {
	r.mu.RLock()
	cc, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-cc.done:
	case <-t.C:
	}
}

// CloseAll unregisters every connection.
func (r *ConnectionRegistry) CloseAll() {
	for _, id := range r.IDs() {
		r.Unregister(id)
	}
}

func (r *ConnectionRegistry) enqueue(id string, frame protocol.Frame, closeAfter bool) bool {
	r.mu.RLock()
	cc, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		metrics.SendFailures.WithLabelValues("absent").Inc()
		log.Debug().Str("component", "webchat").Str("client_id", id).Str("frame_type", frame.Type).Msg("send to absent connection dropped")
		return false
	}
	data, err := frame.Marshal()
	if err != nil {
		metrics.SendFailures.WithLabelValues("marshal").Inc()
		log.Error().Err(err).Str("component", "webchat").Str("client_id", id).Str("frame_type", frame.Type).Msg("frame marshal failed")
		return false
	}
	return r.push(cc, outbound{data: data, frameType: frame.Type, closeAfter: closeAfter})
}

func (r *ConnectionRegistry) push(cc *clientConn, msg outbound) bool {
	if cc.ctx.Err() != nil {
		metrics.SendFailures.WithLabelValues("absent").Inc()
		return false
	}
	select {
	case cc.send <- msg:
		metrics.FramesSent.WithLabelValues(msg.frameType).Inc()
		return true
	default:
		metrics.SendFailures.WithLabelValues("buffer_full").Inc()
		log.Warn().Str("component", "webchat").Str("client_id", cc.id).Msg("ws send buffer full, dropping connection")
		r.Unregister(cc.id)
		return false
	}
}

func (r *ConnectionRegistry) writeLoop(cc *clientConn) {
	defer close(cc.done)
	defer func() { _ = cc.conn.Close() }()
	for {
		select {
		case <-cc.ctx.Done():
			return
		case msg := <-cc.send:
			if r.writeTimeout > 0 {
				_ = cc.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
			}
			if err := cc.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				metrics.SendFailures.WithLabelValues("write").Inc()
				log.Warn().Err(err).Str("component", "webchat").Str("client_id", cc.id).Msg("ws send failed, dropping connection")
				r.Unregister(cc.id)
				return
			}
			if msg.closeAfter {
				r.Unregister(cc.id)
				return
			}
		}
	}
}

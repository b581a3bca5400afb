package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Status is the connection state machine's current state.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusAwaitingHello
	StatusIdentifying
	StatusResuming
	StatusConnected
	StatusReconnecting
)

const (
	// closeCodeNormal invalidates the session server-side.
	closeCodeNormal = websocket.CloseNormalClosure
	// closeCodeResumable is a non-standard code that leaves the session
	// valid for Resume.
	closeCodeResumable = 4000

	// reconnectDelay is the fixed back-off before reopening the transport.
	reconnectDelay = time.Second
)

// The service caps gateway sends per connection; heartbeats bypass the
// limiter so they are never delayed behind command traffic.
var sendLimit = rate.Every(500 * time.Millisecond)

const sendBurst = 120

// Config carries everything the gateway needs to identify.
type Config struct {
	URL        string
	Token      string
	Properties Properties
	Presence   *Presence
}

// Callbacks is the gateway's outward surface. Post funnels work onto the
// owner context; OnDispatch, OnConnected and OnDisconnected are always
// invoked there.
type Callbacks struct {
	Post           func(fn func()) bool
	OnDispatch     func(seq int64, event string, data json.RawMessage)
	OnConnected    func(resumed bool)
	OnDisconnected func(reason string, resumable bool)
}

// Gateway owns the websocket connection and drives the protocol state
// machine: connect, hello, identify or resume, heartbeat, dispatch,
// reconnect.
type Gateway struct {
	logger  *zap.Logger
	cfg     Config
	cb      Callbacks
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	ctx context.Context

	status       atomic.Int32
	stopping     atomic.Bool
	reconnecting atomic.Bool
	seq          atomic.Int64

	// mu guards the per-connection fields below.
	mu        sync.Mutex
	conn      *websocket.Conn
	z         *inflator
	hb        *heartbeat
	sessionID string
	resumable bool

	// writeMu serializes payload writes on the socket.
	writeMu sync.Mutex
}

func New(logger *zap.Logger, cfg Config, cb Callbacks) *Gateway {
	return &Gateway{
		logger:  logger,
		cfg:     cfg,
		cb:      cb,
		dialer:  websocket.DefaultDialer,
		limiter: rate.NewLimiter(sendLimit, sendBurst),
	}
}

// Status returns the current state machine state.
func (g *Gateway) Status() Status {
	return Status(g.status.Load())
}

// Seq returns the last-seen dispatch sequence number.
func (g *Gateway) Seq() int64 {
	return g.seq.Load()
}

// SessionID returns the session established by the last READY.
func (g *Gateway) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionID
}

// Resumable reports whether the next connection attempt will Resume
// instead of Identify.
func (g *Gateway) Resumable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resumable && g.sessionID != ""
}

// Start opens the transport. ctx bounds the connection's lifetime; the
// gateway keeps reconnecting on transport faults until Stop.
func (g *Gateway) Start(ctx context.Context) error {
	g.ctx = ctx
	g.stopping.Store(false)
	return g.connect()
}

func (g *Gateway) connect() error {
	g.status.Store(int32(StatusConnecting))
	conn, _, err := g.dialer.DialContext(g.ctx, g.cfg.URL, nil)
	if err != nil {
		g.status.Store(int32(StatusDisconnected))
		return fmt.Errorf("couldn't dial gateway: %w", err)
	}

	g.mu.Lock()
	g.conn = conn
	g.z = newInflator()
	g.mu.Unlock()

	g.status.Store(int32(StatusAwaitingHello))
	go g.readLoop(conn)
	return nil
}

// Stop is the only path to terminal disconnection: it joins the heartbeat
// goroutine, tears down the inflate state and closes the transport with a
// normal code, invalidating the session.
func (g *Gateway) Stop() {
	if !g.stopping.CompareAndSwap(false, true) {
		return
	}
	g.teardown(closeCodeNormal)

	g.mu.Lock()
	g.sessionID = ""
	g.resumable = false
	g.mu.Unlock()
	g.seq.Store(0)
	g.status.Store(int32(StatusDisconnected))
}

// teardown stops the heartbeat, destroys the inflate stream and closes
// the socket with the given close code.
func (g *Gateway) teardown(closeCode int) {
	g.mu.Lock()
	hb, z, conn := g.hb, g.z, g.conn
	g.hb, g.z, g.conn = nil, nil, nil
	g.mu.Unlock()

	if hb != nil {
		hb.stop()
	}
	if z != nil {
		_ = z.Close()
	}
	if conn != nil {
		msg := websocket.FormatCloseMessage(closeCode, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

func (g *Gateway) readLoop(conn *websocket.Conn) {
	for {
		mt, frame, err := conn.ReadMessage()
		if err != nil {
			g.handleReadError(err)
			return
		}

		var doc []byte
		if mt == websocket.BinaryMessage {
			g.mu.Lock()
			z := g.z
			g.mu.Unlock()
			if z == nil {
				return
			}
			doc, err = z.Feed(frame)
			if err != nil {
				// Non-fatal: drop the message, keep the connection.
				g.logger.Sugar().Errorf("Couldn't decompress gateway message: %s.", err)
				continue
			}
			if doc == nil {
				continue
			}
		} else {
			doc = frame
		}

		var env Envelope
		if err := json.Unmarshal(doc, &env); err != nil {
			g.logger.Sugar().Errorf("Couldn't decode gateway envelope: %s.", err)
			continue
		}
		g.handleEnvelope(&env)
	}
}

func (g *Gateway) handleReadError(err error) {
	if g.stopping.Load() || g.reconnecting.Load() {
		return
	}
	g.logger.Sugar().Warnf("Gateway connection closed abnormally: %s.", err)
	// Same recovery as an explicit Reconnect request.
	g.scheduleReconnect(true, closeCodeResumable, "connection closed abnormally")
}

func (g *Gateway) handleEnvelope(env *Envelope) {
	switch env.Op {
	case OpHello:
		g.handleHello(env.Data)
	case OpHeartbeatAck:
		g.mu.Lock()
		hb := g.hb
		g.mu.Unlock()
		if hb != nil {
			hb.ack()
		}
	case OpHeartbeat:
		// Server-requested beat, answered immediately.
		if err := g.sendHeartbeat(g.seq.Load()); err != nil {
			g.logger.Sugar().Warnf("Couldn't answer heartbeat request: %s.", err)
		}
	case OpReconnect:
		g.logger.Debug("Server requested reconnect.")
		g.scheduleReconnect(true, closeCodeResumable, "server requested reconnect")
	case OpInvalidSession:
		// d is whether the session can still be resumed. The close code
		// must agree with it: a normal close would invalidate the session
		// server-side and doom the resume.
		var resumable bool
		_ = json.Unmarshal(env.Data, &resumable)
		closeCode := closeCodeNormal
		if resumable {
			closeCode = closeCodeResumable
		}
		g.logger.Sugar().Warnf("Session was invalidated (resumable: %t).", resumable)
		g.scheduleReconnect(resumable, closeCode, "session invalidated")
	case OpDispatch:
		g.handleDispatch(env)
	default:
		g.logger.Sugar().Debugf("Ignoring unknown gateway opcode %d.", env.Op)
	}
}

func (g *Gateway) handleHello(data json.RawMessage) {
	var hello helloData
	if err := json.Unmarshal(data, &hello); err != nil {
		g.logger.Sugar().Errorf("Couldn't decode hello payload: %s.", err)
		return
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond

	g.mu.Lock()
	resume := g.resumable && g.sessionID != ""
	sessionID := g.sessionID
	g.mu.Unlock()

	resumed := false
	if resume {
		g.status.Store(int32(StatusResuming))
		g.logger.Sugar().Infof("Resuming session %s at sequence %d.", sessionID, g.seq.Load())
		if err := g.writeOp(OpResume, resumeData{Token: g.cfg.Token, SessionID: sessionID, Seq: g.seq.Load()}); err != nil {
			g.logger.Sugar().Errorf("Couldn't send resume: %s.", err)
			return
		}
		resumed = true
	} else {
		g.status.Store(int32(StatusIdentifying))
		g.seq.Store(0)
		if err := g.writeOp(OpIdentify, identifyData{
			Token:      g.cfg.Token,
			Properties: g.cfg.Properties,
			Compress:   true,
			Presence:   g.cfg.Presence,
		}); err != nil {
			g.logger.Sugar().Errorf("Couldn't send identify: %s.", err)
			return
		}
	}

	// The supervisor starts only once identify/resume is on the wire, so
	// the first beat never precedes it.
	hb := newHeartbeat(g.logger, interval, g.sendHeartbeat, g.seq.Load, g.onStaleConnection)
	g.mu.Lock()
	g.hb = hb
	g.mu.Unlock()
	hb.start()

	g.status.Store(int32(StatusConnected))
	if g.cb.OnConnected != nil {
		g.cb.Post(func() { g.cb.OnConnected(resumed) })
	}
}

func (g *Gateway) handleDispatch(env *Envelope) {
	if env.Seq > 0 {
		g.seq.Store(env.Seq)
	}

	// READY carries the session id the resume path needs.
	if env.Type == "READY" {
		var ready struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(env.Data, &ready); err == nil && ready.SessionID != "" {
			g.mu.Lock()
			g.sessionID = ready.SessionID
			g.mu.Unlock()
		}
	}

	seq, event, data := env.Seq, env.Type, env.Data
	g.cb.Post(func() { g.cb.OnDispatch(seq, event, data) })
}

// onStaleConnection fires when two consecutive heartbeats went
// unacknowledged.
func (g *Gateway) onStaleConnection() {
	g.logger.Warn("Connection is stale, forcing reconnect.")
	g.scheduleReconnect(true, closeCodeResumable, "heartbeat not acknowledged")
}

// scheduleReconnect tears the connection down and reopens the transport
// after the back-off delay. Exactly one attempt is scheduled no matter
// how many faults race here.
func (g *Gateway) scheduleReconnect(resumable bool, closeCode int, reason string) {
	if g.stopping.Load() || !g.reconnecting.CompareAndSwap(false, true) {
		return
	}
	g.status.Store(int32(StatusReconnecting))

	g.mu.Lock()
	g.resumable = resumable
	g.mu.Unlock()

	g.teardown(closeCode)

	if g.cb.OnDisconnected != nil {
		g.cb.Post(func() { g.cb.OnDisconnected(reason, resumable) })
	}

	time.AfterFunc(reconnectDelay, func() {
		g.reconnecting.Store(false)
		if g.stopping.Load() || (g.ctx != nil && g.ctx.Err() != nil) {
			return
		}
		if err := g.connect(); err != nil {
			g.logger.Sugar().Errorf("Reconnect attempt failed: %s.", err)
			g.scheduleReconnect(g.Resumable(), closeCodeResumable, "reconnect attempt failed")
		}
	})
}

// RequestGuildMembers asks the server to stream the guild's member list
// in chunks.
func (g *Gateway) RequestGuildMembers(guildID string) error {
	return g.writeOp(OpRequestGuildMembers, requestGuildMembersData{GuildID: guildID, Query: "", Limit: 0})
}

// UpdatePresence replaces the connection's presence.
func (g *Gateway) UpdatePresence(p Presence) error {
	return g.writeOp(OpPresenceUpdate, p)
}

func (g *Gateway) sendHeartbeat(seq int64) error {
	// Bypasses the rate limiter: a delayed beat reads as a dead
	// connection server-side.
	var data json.RawMessage
	if seq > 0 {
		data = json.RawMessage(fmt.Sprintf("%d", seq))
	} else {
		data = json.RawMessage("null")
	}
	return g.write(&Envelope{Op: OpHeartbeat, Data: data})
}

func (g *Gateway) writeOp(op Op, d any) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("couldn't encode op %d payload: %w", op, err)
	}
	ctx := g.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return g.write(&Envelope{Op: op, Data: data})
}

func (g *Gateway) write(env *Envelope) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("gateway is not connected")
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(env)
}

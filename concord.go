package concord

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"pkg.mon.icu/concord/internal/gateway"
	"pkg.mon.icu/concord/internal/rest"
	"pkg.mon.icu/concord/internal/state"
	"pkg.mon.icu/concord/model"
)

// Config selects the account and the scope of the connection.
type Config struct {
	// Auth is the account token, sent verbatim in Identify and REST
	// authorization.
	Auth string
	// GatewayURL overrides the gateway endpoint, mainly for tests.
	GatewayURL string
	// RestBaseURL overrides the control-plane root, mainly for tests.
	RestBaseURL string
	// Guilds restricts dispatch handling to the listed guilds. Empty
	// means every guild the account can see.
	Guilds []model.Snowflake
	// Presence is the initial presence status ("online" when empty).
	Presence string
}

// Client is the gateway client: one websocket session, one in-memory
// cache, one owner goroutine. Commands may be issued from any goroutine;
// cache reads and subscription callbacks belong to the owner context
// (see Do).
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
	config Config
	guilds *snowflakeSet

	loop     *state.Loop
	store    *state.Store
	gw       *gateway.Gateway
	rest     *rest.Client
	handlers map[string]func(json.RawMessage)

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)

	// selfID is the account's own user id, set by READY. Owner-confined.
	selfID model.Snowflake

	loopDone chan struct{}
}

// NewClient wires the subsystems together. Nothing connects until Start.
func NewClient(ctx context.Context, logger *zap.Logger, config Config) *Client {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		config:   config,
		guilds:   newSnowflakeSet(config.Guilds),
		loop:     state.NewLoop(logger),
		store:    state.NewStore(),
		subs:     make(map[int]func(Event)),
		loopDone: make(chan struct{}),
	}
	c.handlers = c.dispatchTable()

	gwURL := config.GatewayURL
	if gwURL == "" {
		gwURL = "wss://gateway.discord.gg/?v=9&encoding=json&compress=zlib-stream"
	}
	presence := config.Presence
	if presence == "" {
		presence = "online"
	}
	c.gw = gateway.New(logger, gateway.Config{
		URL:   gwURL,
		Token: config.Auth,
		Properties: gateway.Properties{
			OS:      "linux",
			Browser: "concord",
			Device:  "concord",
		},
		Presence: &gateway.Presence{Status: presence},
	}, gateway.Callbacks{
		Post:           c.loop.Post,
		OnDispatch:     c.onDispatch,
		OnConnected:    c.onConnected,
		OnDisconnected: c.onDisconnected,
	})
	c.rest = rest.New(logger, rest.Config{BaseURL: config.RestBaseURL, Token: config.Auth}, c.loop.Post)
	return c
}

// Start launches the owner goroutine and opens the gateway connection.
func (c *Client) Start() error {
	go func() {
		defer close(c.loopDone)
		c.loop.Run(c.ctx)
	}()
	if err := c.gw.Start(c.ctx); err != nil {
		return fmt.Errorf("couldn't start gateway: %w", err)
	}
	return nil
}

// Stop tears the client down: gateway closed with a normal code,
// heartbeat joined, owner goroutine drained, cache cleared. In-flight
// REST completions are dropped.
func (c *Client) Stop() {
	c.gw.Stop()
	c.cancel()
	c.loop.Close()
	<-c.loopDone
	c.store.Reset()
}

// Do runs fn on the owner context, where cache reads and writes are
// safe. Returns false if the client is stopped.
func (c *Client) Do(fn func()) bool {
	return c.loop.Post(fn)
}

// Subscribe registers a domain-event callback, invoked on the owner
// context. The returned func unsubscribes.
func (c *Client) Subscribe(fn func(Event)) func() {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// emit delivers an event to subscribers. Inside a transaction delivery
// is deferred to the commit so no subscriber sees a partial batch.
func (c *Client) emit(ev Event) {
	c.store.Defer(func() {
		c.subMu.Lock()
		fns := make([]func(Event), 0, len(c.subs))
		for _, fn := range c.subs {
			fns = append(fns, fn)
		}
		c.subMu.Unlock()
		for _, fn := range fns {
			fn(ev)
		}
	})
}

// onDispatch routes one application event. Handler faults are isolated:
// one bad payload is logged and dropped, the connection lives on.
func (c *Client) onDispatch(seq int64, event string, data json.RawMessage) {
	h, ok := c.handlers[event]
	if !ok {
		c.logger.Sugar().Debugf("Ignoring unknown event %q (seq %d).", event, seq)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			// A fault inside a transaction bracket must not leak the open
			// bracket, or every later emission stays parked forever.
			c.store.Abort()
			c.logger.Sugar().Errorf("Handler for %q panicked: %v.\n%s", event, r, debug.Stack())
		}
	}()
	h(data)
}

func (c *Client) onConnected(resumed bool) {
	c.emit(&ConnectedEvent{Resumed: resumed})
}

func (c *Client) onDisconnected(reason string, resumable bool) {
	c.emit(&DisconnectedEvent{Reason: reason, Resumable: resumable})
}

// Cache reads. Owner context only: call from a subscription callback or
// wrap in Do.

func (c *Client) Self() (*model.User, bool) { return c.store.User(c.selfID) }
func (c *Client) SelfID() model.Snowflake   { return c.selfID }

func (c *Client) Guild(id model.Snowflake) (*model.Guild, bool)     { return c.store.Guild(id) }
func (c *Client) Channel(id model.Snowflake) (*model.Channel, bool) { return c.store.Channel(id) }
func (c *Client) User(id model.Snowflake) (*model.User, bool)       { return c.store.User(id) }
func (c *Client) Role(id model.Snowflake) (*model.Role, bool)       { return c.store.Role(id) }
func (c *Client) Message(id model.Snowflake) (*model.Message, bool) { return c.store.Message(id) }

func (c *Client) Member(guildID, userID model.Snowflake) (*model.Member, bool) {
	return c.store.Member(guildID, userID)
}

func (c *Client) Ban(guildID, userID model.Snowflake) (*model.Ban, bool) {
	return c.store.Ban(guildID, userID)
}

func (c *Client) Presence(userID model.Snowflake) (string, bool) {
	return c.store.Presence(userID)
}

// ChannelMessages returns up to limit cached message ids for the
// channel, ascending.
func (c *Client) ChannelMessages(channelID model.Snowflake, limit int) []model.Snowflake {
	return c.store.ChannelMessages(channelID, limit)
}

// MemberList returns the guild's member sidebar rows.
func (c *Client) MemberList(guildID model.Snowflake) []state.MemberListEntry {
	return c.store.MemberList(guildID)
}

// Permission queries. Owner context only.

// BasePermissions resolves the user's guild-wide permissions.
func (c *Client) BasePermissions(userID, guildID model.Snowflake) model.Permissions {
	return c.store.BasePermissions(userID, guildID)
}

// ChannelPermissions resolves the user's effective permissions in a
// channel, overwrites applied.
func (c *Client) ChannelPermissions(userID, channelID model.Snowflake) model.Permissions {
	return c.store.ChannelPermissions(userID, channelID)
}

// CanManageMember reports whether actor outranks target in the guild's
// role hierarchy.
func (c *Client) CanManageMember(guildID, actorID, targetID model.Snowflake) bool {
	return c.store.CanManageMember(guildID, actorID, targetID)
}

// inGuildScope reports whether dispatch for the guild should be handled
// under the configured subscription filter. Guildless (DM) traffic
// always passes.
func (c *Client) inGuildScope(guildID model.Snowflake) bool {
	if !guildID.IsValid() || c.guilds.Empty() {
		return true
	}
	return c.guilds.Contains(guildID)
}

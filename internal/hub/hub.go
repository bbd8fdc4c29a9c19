// Package hub owns the websocket side of the gateway: connection lifecycle,
// room membership, inbound event dispatch and presence. Everything durable
// is delegated to the pipeline; everything cross-node goes through the bus.
package hub

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/ephemeral"
	"guildgate-backend/internal/events"
	"guildgate-backend/internal/jwt"
	"guildgate-backend/internal/observability"
	"guildgate-backend/internal/pipeline"
	"guildgate-backend/internal/store"
	"guildgate-backend/internal/voice"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 65536
	sendBuffer     = 64
)

type Hub struct {
	sugar       *zap.SugaredLogger
	store       *store.Store
	bus         Bus
	pipeline    *pipeline.Pipeline
	voice       *voice.Bridge
	eph         *ephemeral.Store
	signer      *jwt.Signer
	broadcaster *BusBroadcaster
	metrics     *observability.Metrics
	graceWindow time.Duration
	upgrader    websocket.Upgrader

	mutex       sync.Mutex
	sessions    map[string]*Client
	byAccount   map[int64]map[string]*Client
	graceTimers map[int64]*time.Timer
}

func NewHub(
	sugar *zap.SugaredLogger,
	st *store.Store,
	bus Bus,
	pipe *pipeline.Pipeline,
	bridge *voice.Bridge,
	eph *ephemeral.Store,
	signer *jwt.Signer,
	broadcaster *BusBroadcaster,
	metrics *observability.Metrics,
	graceWindow time.Duration,
) *Hub {
	if graceWindow <= 0 {
		graceWindow = 10 * time.Second
	}
	return &Hub{
		sugar:       sugar,
		store:       st,
		bus:         bus,
		pipeline:    pipe,
		voice:       bridge,
		eph:         eph,
		signer:      signer,
		broadcaster: broadcaster,
		metrics:     metrics,
		graceWindow: graceWindow,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions:    make(map[string]*Client),
		byAccount:   make(map[int64]map[string]*Client),
		graceTimers: make(map[int64]*time.Timer),
	}
}

// Client is one authenticated websocket session. An account may hold several
// at once; presence tracks the account, rooms track the session.
type Client struct {
	hub       *Hub
	sessionID string
	accountID int64
	conn      *websocket.Conn
	sub       Subscriber
	cancelSub context.CancelFunc
	send      chan []byte

	mutex          sync.Mutex
	focusedChannel int64
	voiceChannel   int64
}

// HandleClient authenticates the handshake, upgrades it and runs the session
// until the socket drops. Browsers can't set headers on websocket requests,
// so the token may also ride the query string.
func (h *Hub) HandleClient(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	token, err := h.signer.VerifyToken(tokenString)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sugar.Errorf("Websocket upgrade failed: %s", err)
		return
	}

	subCtx, cancelSub := context.WithCancel(context.Background())
	client := &Client{
		hub:       h,
		sessionID: uuid.NewString(),
		accountID: token.AccountID,
		conn:      conn,
		sub:       h.bus.NewSubscriber(subCtx),
		cancelSub: cancelSub,
		send:      make(chan []byte, sendBuffer),
	}

	if err := h.register(r.Context(), client); err != nil {
		h.sugar.Errorf("Registering session for account %d failed: %s", client.accountID, err)
		cancelSub()
		if err := client.sub.Close(); err != nil {
			h.sugar.Error(err)
		}
		conn.Close()
		return
	}

	go client.writeLoop()
	client.readLoop()
	h.unregister(client)
}

// register joins the session's baseline rooms and marks the account online.
// A reconnect inside the grace window cancels the pending downgrade.
func (h *Hub) register(ctx context.Context, client *Client) error {
	if err := client.sub.Join(events.UserRoom(client.accountID)); err != nil {
		return err
	}

	guildIDs, err := h.store.GuildIDsForAccount(ctx, client.accountID)
	if err != nil {
		return err
	}
	for _, guildID := range guildIDs {
		if err := client.sub.Join(events.GuildRoom(guildID)); err != nil {
			return err
		}
	}

	h.mutex.Lock()
	h.sessions[client.sessionID] = client
	if h.byAccount[client.accountID] == nil {
		h.byAccount[client.accountID] = make(map[string]*Client)
	}
	h.byAccount[client.accountID][client.sessionID] = client
	firstSession := len(h.byAccount[client.accountID]) == 1

	if timer, ok := h.graceTimers[client.accountID]; ok {
		timer.Stop()
		delete(h.graceTimers, client.accountID)
	}
	h.mutex.Unlock()

	h.metrics.OpenConnections.Inc()

	status := h.store.DefaultStatus(ctx, client.accountID)
	if err := h.setPresence(ctx, client.accountID, status, guildIDs); err != nil {
		h.sugar.Error(err)
	}
	if firstSession {
		h.sugar.Infof("Account %d connected, session %s", client.accountID, client.sessionID)
	}
	return nil
}

func (h *Hub) unregister(client *Client) {
	h.mutex.Lock()
	delete(h.sessions, client.sessionID)
	delete(h.byAccount[client.accountID], client.sessionID)
	lastSession := len(h.byAccount[client.accountID]) == 0
	if lastSession {
		delete(h.byAccount, client.accountID)
	}
	h.mutex.Unlock()

	h.metrics.OpenConnections.Dec()

	client.cancelSub()
	if err := client.sub.Close(); err != nil {
		h.sugar.Error(err)
	}
	close(client.send)
	client.conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// the media server is told immediately; voice occupancy has no grace
	client.mutex.Lock()
	voiceChannel := client.voiceChannel
	client.mutex.Unlock()
	if voiceChannel != 0 {
		if err := h.voice.Leave(ctx, client.accountID, voiceChannel); err != nil {
			h.sugar.Errorf("Implicit voice leave for account %d failed: %s", client.accountID, err)
		}
	}

	if lastSession {
		h.clearTyping(ctx, client.accountID)
		h.startPresenceGrace(client.accountID)
	}
}

// startPresenceGrace arms the offline downgrade. The timer only wins if no
// session for the account comes back before it fires.
func (h *Hub) startPresenceGrace(accountID int64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if timer, ok := h.graceTimers[accountID]; ok {
		timer.Stop()
	}
	h.graceTimers[accountID] = time.AfterFunc(h.graceWindow, func() {
		h.mutex.Lock()
		delete(h.graceTimers, accountID)
		stillGone := len(h.byAccount[accountID]) == 0
		h.mutex.Unlock()
		if !stillGone {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := h.eph.Delete(ctx, ephemeral.PresenceKey(accountID)); err != nil {
			h.sugar.Error(err)
		}
		guildIDs, err := h.store.GuildIDsForAccount(ctx, accountID)
		if err != nil {
			h.sugar.Errorf("Presence downgrade for account %d failed: %s", accountID, err)
			return
		}
		changed := events.PresenceChanged{UserID: accountID, Status: "offline"}
		for _, guildID := range guildIDs {
			if err := h.broadcaster.Broadcast(ctx, events.GuildRoom(guildID), events.TypePresenceChanged, changed); err != nil {
				h.sugar.Error(err)
			}
		}
		h.metrics.PresenceDowngrade.Inc()
		h.sugar.Infof("Account %d presence downgraded to offline", accountID)
	})
}

func (h *Hub) setPresence(ctx context.Context, accountID int64, status string, guildIDs []int64) error {
	err := h.eph.SetWithTTL(ctx, ephemeral.PresenceKey(accountID),
		map[string]string{"status": status, "lastSeen": time.Now().UTC().Format(time.RFC3339)},
		ephemeral.PresenceTTL)
	if err != nil {
		return err
	}

	changed := events.PresenceChanged{UserID: accountID, Status: status}
	for _, guildID := range guildIDs {
		if err := h.broadcaster.Broadcast(ctx, events.GuildRoom(guildID), events.TypePresenceChanged, changed); err != nil {
			h.sugar.Error(err)
		}
	}
	return nil
}

// clearTyping drops every typing marker the account left behind and tells the
// affected channels.
func (h *Hub) clearTyping(ctx context.Context, accountID int64) {
	keys, err := h.eph.Scan(ctx, ephemeral.TypingPattern(accountID))
	if err != nil {
		h.sugar.Error(err)
		return
	}
	for _, key := range keys {
		parts := strings.Split(key, ":")
		if len(parts) != 3 {
			continue
		}
		channelID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		update := events.TypingUpdate{ChannelID: channelID, UserID: accountID, Typing: false}
		if err := h.broadcaster.Broadcast(ctx, events.ChannelRoom(channelID), events.TypeTypingUpdate, update); err != nil {
			h.sugar.Error(err)
		}
	}
	if err := h.eph.DeleteByPattern(ctx, ephemeral.TypingPattern(accountID)); err != nil {
		h.sugar.Error(err)
	}
}

func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// a live socket refreshes presence without a frame
		if err := c.hub.eph.Refresh(context.Background(), ephemeral.PresenceKey(c.accountID), ephemeral.PresenceTTL); err != nil {
			c.hub.sugar.Error(err)
		}
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.sugar.Warnf("Session %s read error: %s", c.sessionID, err)
			}
			return
		}
		c.hub.dispatch(c, frame)
	}
}

// writeLoop is the only goroutine that writes to the socket. It merges the
// session's own replies with everything its rooms broadcast.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case frame, ok := <-c.sub.Messages():
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a frame to the write loop. A full buffer drops the frame
// rather than stalling dispatch.
func (c *Client) enqueue(frame []byte) {
	defer func() {
		// the send channel closes on unregister; a reply racing that close
		// is discarded with the session
		recover()
	}()
	select {
	case c.send <- frame:
	default:
		c.hub.sugar.Warnf("Dropping reply to slow session %s", c.sessionID)
	}
}

func (c *Client) reply(eventType string, data any) {
	frame, err := events.Encode(eventType, data)
	if err != nil {
		c.hub.sugar.Error(err)
		return
	}
	c.enqueue(frame)
}

func (c *Client) ack(forType string, err error, data any) {
	ack := events.Ack{For: forType, Success: err == nil, Data: data}
	if err != nil {
		ack.Code = apperr.Code(err)
		ack.Message = err.Error()
		var fieldErrs *apperr.FieldErrors
		if errors.As(err, &fieldErrs) {
			ack.Fields = fieldErrs.Fields
		}
	}
	c.reply(events.TypeAck, ack)
}

package hub

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"guildgate-backend/internal/database"
	"guildgate-backend/internal/ephemeral"
	"guildgate-backend/internal/events"
	"guildgate-backend/internal/jwt"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/observability"
	"guildgate-backend/internal/store"
)

type hubRig struct {
	hub *Hub
	bus *LocalBus
	eph *ephemeral.Store
}

func newHubRig(t *testing.T, graceWindow time.Duration) *hubRig {
	t.Helper()
	sugar := zap.NewNop().Sugar()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.SetupTables(db))

	st := store.New(sugar, db)
	ctx := context.Background()
	require.NoError(t, st.CreateAccount(ctx, models.Account{
		ID: 42, Email: "m@example.com", UserName: "m", DisplayName: "Mona", DefaultStatus: "online", Password: []byte("x"),
	}))
	require.NoError(t, st.CreateGuild(ctx,
		models.Guild{ID: 10, OwnerID: 42, Name: "Guild"},
		models.Role{ID: 1000, GuildID: 10, Name: "everyone"},
		models.Channel{ID: 100, GuildID: 10, Name: "general", Kind: models.ChannelKindText},
	))

	bus := NewLocalBus(sugar)
	eph := ephemeral.NewLocal(sugar)
	t.Cleanup(eph.Close)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	broadcaster := NewBroadcaster(sugar, bus, metrics)

	h := NewHub(sugar, st, bus, nil, nil, eph, jwt.NewSigner("secret", false), broadcaster, metrics, graceWindow)
	return &hubRig{hub: h, bus: bus, eph: eph}
}

// decodeFrame opens the envelope without the inbound decoder, since outbound
// types fall outside its switch.
func decodeFrame(t *testing.T, frame []byte) (string, json.RawMessage) {
	t.Helper()
	var envelope events.Envelope
	require.NoError(t, json.Unmarshal(frame, &envelope))
	return envelope.Type, envelope.Data
}

func TestPresenceGraceDowngradesAfterWindow(t *testing.T) {
	rig := newHubRig(t, 50*time.Millisecond)
	ctx := context.Background()

	watcher := rig.bus.NewSubscriber(ctx)
	require.NoError(t, watcher.Join(events.GuildRoom(10)))

	require.NoError(t, rig.hub.setPresence(ctx, 42, "online", []int64{10}))
	receive(t, watcher) // the online presence:changed

	rig.hub.startPresenceGrace(42)
	time.Sleep(250 * time.Millisecond)

	fields, err := rig.eph.Get(ctx, ephemeral.PresenceKey(42))
	require.NoError(t, err)
	assert.Nil(t, fields, "presence key must be gone after the grace window")

	eventType, raw := decodeFrame(t, receive(t, watcher))
	require.Equal(t, events.TypePresenceChanged, eventType)

	var changed events.PresenceChanged
	require.NoError(t, json.Unmarshal(raw, &changed))
	assert.Equal(t, int64(42), changed.UserID)
	assert.Equal(t, "offline", changed.Status)
}

func TestPresenceGraceCanceledByReconnect(t *testing.T) {
	rig := newHubRig(t, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, rig.hub.setPresence(ctx, 42, "online", nil))
	rig.hub.startPresenceGrace(42)

	// a session comes back before the timer fires
	rig.hub.mutex.Lock()
	rig.hub.byAccount[42] = map[string]*Client{"session": {}}
	rig.hub.mutex.Unlock()

	time.Sleep(250 * time.Millisecond)

	fields, err := rig.eph.Get(ctx, ephemeral.PresenceKey(42))
	require.NoError(t, err)
	assert.Equal(t, "online", fields["status"], "reconnect inside the window keeps presence")
}

func TestFocusChannelIsSingleSlot(t *testing.T) {
	rig := newHubRig(t, time.Second)
	ctx := context.Background()

	client := &Client{hub: rig.hub, accountID: 42, sub: rig.bus.NewSubscriber(ctx)}

	require.NoError(t, client.focusChannel(1))
	require.NoError(t, rig.bus.Publish(ctx, events.ChannelRoom(1), []byte("a")))
	assert.Equal(t, []byte("a"), receive(t, client.sub))

	require.NoError(t, client.focusChannel(2))
	require.NoError(t, rig.bus.Publish(ctx, events.ChannelRoom(1), []byte("stale")))
	require.NoError(t, rig.bus.Publish(ctx, events.ChannelRoom(2), []byte("b")))
	assert.Equal(t, []byte("b"), receive(t, client.sub), "old focus room must be left before the new one delivers")

	require.NoError(t, client.focusChannel(0))
	require.NoError(t, rig.bus.Publish(ctx, events.ChannelRoom(2), []byte("c")))
	select {
	case frame := <-client.sub.Messages():
		t.Fatalf("received %q after blur", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClearTypingDropsMarkersAndNotifiesChannels(t *testing.T) {
	rig := newHubRig(t, time.Second)
	ctx := context.Background()

	require.NoError(t, rig.eph.SetWithTTL(ctx, ephemeral.TypingKey(100, 42), map[string]string{"at": "now"}, ephemeral.TypingTTL))
	require.NoError(t, rig.eph.SetWithTTL(ctx, ephemeral.TypingKey(200, 42), map[string]string{"at": "now"}, ephemeral.TypingTTL))

	watcher := rig.bus.NewSubscriber(ctx)
	require.NoError(t, watcher.Join(events.ChannelRoom(100)))
	require.NoError(t, watcher.Join(events.ChannelRoom(200)))

	rig.hub.clearTyping(ctx, 42)

	keys, err := rig.eph.Scan(ctx, ephemeral.TypingPattern(42))
	require.NoError(t, err)
	assert.Empty(t, keys)

	seen := map[int64]bool{}
	for i := 0; i < 2; i++ {
		eventType, raw := decodeFrame(t, receive(t, watcher))
		require.Equal(t, events.TypeTypingUpdate, eventType)
		var update events.TypingUpdate
		require.NoError(t, json.Unmarshal(raw, &update))
		assert.False(t, update.Typing)
		assert.Equal(t, int64(42), update.UserID)
		seen[update.ChannelID] = true
	}
	assert.True(t, seen[100] && seen[200], "both channels must learn the typing stopped")
}

// refusingBus hands out subscribers that cannot join any room, so session
// registration always fails after the websocket upgrade.
type refusingBus struct {
	inner *LocalBus

	mutex sync.Mutex
	subs  []*refusingSubscriber
}

func (b *refusingBus) Publish(ctx context.Context, room string, payload []byte) error {
	return b.inner.Publish(ctx, room, payload)
}

func (b *refusingBus) NewSubscriber(ctx context.Context) Subscriber {
	sub := &refusingSubscriber{Subscriber: b.inner.NewSubscriber(ctx)}
	b.mutex.Lock()
	b.subs = append(b.subs, sub)
	b.mutex.Unlock()
	return sub
}

type refusingSubscriber struct {
	Subscriber
	closed atomic.Bool
}

func (s *refusingSubscriber) Join(room string) error {
	return errors.New("subscribe refused")
}

func (s *refusingSubscriber) Close() error {
	s.closed.Store(true)
	return s.Subscriber.Close()
}

func TestRegisterFailureClosesSubscription(t *testing.T) {
	sugar := zap.NewNop().Sugar()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.SetupTables(db))

	bus := &refusingBus{inner: NewLocalBus(sugar)}
	eph := ephemeral.NewLocal(sugar)
	t.Cleanup(eph.Close)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	signer := jwt.NewSigner("secret", false)
	broadcaster := NewBroadcaster(sugar, bus, metrics)
	h := NewHub(sugar, store.New(sugar, db), bus, nil, nil, eph, signer, broadcaster, metrics, time.Second)

	server := httptest.NewServer(http.HandlerFunc(h.HandleClient))
	t.Cleanup(server.Close)

	_, raw, err := signer.CreateToken(false, 42)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?token=" + raw
	conn, resp, dialErr := websocket.DefaultDialer.Dial(url, nil)
	if dialErr == nil {
		conn.Close()
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	require.Eventually(t, func() bool {
		bus.mutex.Lock()
		defer bus.mutex.Unlock()
		if len(bus.subs) != 1 {
			return false
		}
		return bus.subs[0].closed.Load()
	}, time.Second, 10*time.Millisecond, "a session that fails to register must close its bus subscription")
}

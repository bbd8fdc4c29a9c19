package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"guildgate-backend/internal/crypto"
	"guildgate-backend/internal/database"
	"guildgate-backend/internal/ephemeral"
	"guildgate-backend/internal/jwt"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/observability"
	"guildgate-backend/internal/permissions"
	"guildgate-backend/internal/snowflake"
	"guildgate-backend/internal/store"
)

type recordingBroadcaster struct{}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, room string, eventType string, data any) error {
	return nil
}

// newTestHandlers seeds guild 10 with the owner (1), a moderator (2) holding
// kick and ban bits at position 1, and a plain member (3).
func newTestHandlers(t *testing.T) (*Handlers, *store.Store) {
	t.Helper()
	sugar := zap.NewNop().Sugar()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.SetupTables(db))

	st := store.New(sugar, db)
	ctx := context.Background()
	for _, account := range []models.Account{
		{ID: 1, Email: "owner@example.com", UserName: "owner", DisplayName: "Owner", DefaultStatus: "online", Password: []byte("x")},
		{ID: 2, Email: "mod@example.com", UserName: "mod", DisplayName: "Mod", DefaultStatus: "online", Password: []byte("x")},
		{ID: 3, Email: "member@example.com", UserName: "member", DisplayName: "Member", DefaultStatus: "online", Password: []byte("x")},
	} {
		require.NoError(t, st.CreateAccount(ctx, account))
	}
	require.NoError(t, st.CreateGuild(ctx,
		models.Guild{ID: 10, OwnerID: 1, Name: "Guild"},
		models.Role{ID: 1000, GuildID: 10, Name: "everyone", Permissions: uint64(permissions.Default())},
		models.Channel{ID: 100, GuildID: 10, Name: "general", Kind: models.ChannelKindText},
	))
	require.NoError(t, st.AddMember(ctx, 10, 2))
	require.NoError(t, st.AddMember(ctx, 10, 3))
	require.NoError(t, st.CreateRole(ctx, models.Role{
		ID: 1001, GuildID: 10, Name: "mods",
		Permissions: uint64(permissions.KickMembers | permissions.BanMembers), Position: 1,
	}))
	require.NoError(t, st.AssignRole(ctx, 10, 2, 1001))

	codec, err := crypto.NewCodec("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	generator, err := snowflake.NewGenerator(0)
	require.NoError(t, err)
	eph := ephemeral.NewLocal(sugar)
	t.Cleanup(eph.Close)

	registry := prometheus.NewRegistry()
	h := New(sugar, &models.ConfigFile{}, st, codec, permissions.NewEngine(st), jwt.NewSigner("secret", false),
		eph, nil, nil, &recordingBroadcaster{}, generator, observability.NewMetrics(registry), registry)
	return h, st
}

// request builds an authenticated JSON request the way the middleware would
// hand it to a handler.
func request(t *testing.T, asAccount int64, body any) *http.Request {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(encoded))
	return r.WithContext(context.WithValue(r.Context(), accountIDKeyType{}, asAccount))
}

func TestBanMemberEndpoint(t *testing.T) {
	h, st := newTestHandlers(t)
	ctx := context.Background()

	type banBody struct {
		GuildID   int64  `json:"guildID,string"`
		AccountID int64  `json:"accountID,string"`
		Reason    string `json:"reason"`
	}

	// a plain member holds no ban bit
	w := httptest.NewRecorder()
	h.BanMember(w, request(t, 3, banBody{GuildID: 10, AccountID: 2}))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// nobody outranks the owner
	w = httptest.NewRecorder()
	h.BanMember(w, request(t, 2, banBody{GuildID: 10, AccountID: 1}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.BanMember(w, request(t, 2, banBody{GuildID: 10, AccountID: 3, Reason: "spam"}))
	require.Equal(t, http.StatusOK, w.Code)

	banned, err := st.IsBanned(ctx, 10, 3)
	require.NoError(t, err)
	assert.True(t, banned)
	isMember, err := st.IsMember(ctx, 10, 3)
	require.NoError(t, err)
	assert.False(t, isMember)

	w = httptest.NewRecorder()
	h.UnbanMember(w, request(t, 2, banBody{GuildID: 10, AccountID: 3}))
	require.Equal(t, http.StatusOK, w.Code)
	banned, err = st.IsBanned(ctx, 10, 3)
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestBanMemberEqualRankRejected(t *testing.T) {
	h, _ := newTestHandlers(t)

	// same top position on both sides, so the ban bit alone isn't enough
	require.NoError(t, h.store.AssignRole(context.Background(), 10, 3, 1001))

	w := httptest.NewRecorder()
	h.BanMember(w, request(t, 2, map[string]string{"guildID": "10", "accountID": "3"}))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestJoinByInviteRejectsBanned(t *testing.T) {
	h, st := newTestHandlers(t)
	ctx := context.Background()

	code := uuid.NewString()
	require.NoError(t, st.CreateInvite(ctx, models.Invite{Code: code, GuildID: 10, CreatorID: 1}))
	require.NoError(t, st.BanMember(ctx, 10, 3, 2, "spam"))

	w := httptest.NewRecorder()
	h.JoinByInvite(w, request(t, 3, map[string]string{"code": code}))
	assert.Equal(t, http.StatusForbidden, w.Code)

	isMember, err := st.IsMember(ctx, 10, 3)
	require.NoError(t, err)
	assert.False(t, isMember, "a banned account must not slip back in through an invite")

	require.NoError(t, st.UnbanMember(ctx, 10, 3))
	w = httptest.NewRecorder()
	h.JoinByInvite(w, request(t, 3, map[string]string{"code": code}))
	require.Equal(t, http.StatusOK, w.Code)

	isMember, err = st.IsMember(ctx, 10, 3)
	require.NoError(t, err)
	assert.True(t, isMember)
}

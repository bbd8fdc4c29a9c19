package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/database"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/permissions"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	require.NoError(t, database.SetupTables(db))

	return New(zap.NewNop().Sugar(), db)
}

// seedGuild creates two accounts (1 owner, 2 member) and guild 10 with
// channel 100 and default role 1000.
func seedGuild(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	for _, account := range []models.Account{
		{ID: 1, Email: "owner@example.com", UserName: "owner", DisplayName: "Owner", DefaultStatus: "online", Password: []byte("x")},
		{ID: 2, Email: "member@example.com", UserName: "member", DisplayName: "Member", DefaultStatus: "online", Password: []byte("x")},
	} {
		require.NoError(t, s.CreateAccount(ctx, account))
	}

	require.NoError(t, s.CreateGuild(ctx,
		models.Guild{ID: 10, OwnerID: 1, Name: "Test Guild"},
		models.Role{ID: 1000, GuildID: 10, Name: "everyone", Permissions: uint64(permissions.Default())},
		models.Channel{ID: 100, GuildID: 10, Name: "general", Kind: models.ChannelKindText},
	))
	require.NoError(t, s.AddMember(ctx, 10, 2))
}

func TestCreateGuildSeedsDefaults(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	ownerID, err := s.GuildOwnerID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ownerID)

	role, err := s.DefaultRole(ctx, 10)
	require.NoError(t, err)
	assert.True(t, role.IsDefault)
	assert.Equal(t, "everyone", role.Name)

	channels, err := s.ChannelsForGuild(ctx, 10)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, models.ChannelKindText, channels[0].Kind)

	isMember, err := s.IsMember(ctx, 10, 1)
	require.NoError(t, err)
	assert.True(t, isMember, "owner gets a membership row")
}

func TestGuildOwnerIDUnknownGuild(t *testing.T) {
	s := newTestStore(t)

	ownerID, err := s.GuildOwnerID(context.Background(), 999)
	require.NoError(t, err)
	assert.Zero(t, ownerID)
}

func TestDefaultRoleGuards(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	err := s.DeleteRole(ctx, 1000)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	err = s.UpdateRole(ctx, models.Role{ID: 1000, GuildID: 10, Name: "renamed", Permissions: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// mask changes on the default role are fine
	err = s.UpdateRole(ctx, models.Role{ID: 1000, GuildID: 10, Name: "everyone", Permissions: 3})
	require.NoError(t, err)
}

func TestDeleteRoleStripsMemberships(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	require.NoError(t, s.CreateRole(ctx, models.Role{ID: 1001, GuildID: 10, Name: "mods", Permissions: uint64(permissions.ManageMessages), Position: 1}))
	require.NoError(t, s.AssignRole(ctx, 10, 2, 1001))

	roles, isMember, err := s.MemberRoles(ctx, 10, 2)
	require.NoError(t, err)
	require.True(t, isMember)
	require.Len(t, roles, 1)

	require.NoError(t, s.DeleteRole(ctx, 1001))

	roles, isMember, err = s.MemberRoles(ctx, 10, 2)
	require.NoError(t, err)
	assert.True(t, isMember)
	assert.Empty(t, roles, "deleted role must be stripped from memberships")
}

func TestAssignRoleCrossGuildRejected(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	require.NoError(t, s.CreateGuild(ctx,
		models.Guild{ID: 20, OwnerID: 1, Name: "Other"},
		models.Role{ID: 2000, GuildID: 20, Name: "everyone", Permissions: uint64(permissions.Default())},
		models.Channel{ID: 200, GuildID: 20, Name: "general", Kind: models.ChannelKindText},
	))
	require.NoError(t, s.CreateRole(ctx, models.Role{ID: 2001, GuildID: 20, Name: "other-role", Position: 1}))

	err := s.AssignRole(ctx, 10, 2, 2001)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	require.NoError(t, s.CreateRole(ctx, models.Role{ID: 1001, GuildID: 10, Name: "mods", Position: 1}))
	require.NoError(t, s.AssignRole(ctx, 10, 2, 1001))
	require.NoError(t, s.AssignRole(ctx, 10, 2, 1001))

	roles, _, err := s.MemberRoles(ctx, 10, 2)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestLastChannelCannotBeDeleted(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	err := s.DeleteChannel(ctx, 100)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, s.CreateChannel(ctx, models.Channel{ID: 101, GuildID: 10, Name: "second", Kind: models.ChannelKindText, Position: 1}))
	require.NoError(t, s.DeleteChannel(ctx, 100))
}

func TestMessageLifecycleAndOrdering(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.InsertMessage(ctx, models.Message{
			ID:        i,
			ChannelID: 100,
			AuthorID:  1,
		}, "body"))
	}

	messages, err := s.MessagesBefore(ctx, 100, 0, 50)
	require.NoError(t, err)
	require.Len(t, messages, 5)
	for i := 1; i < len(messages); i++ {
		assert.Greater(t, messages[i].ID, messages[i-1].ID, "history must come back in persisted order")
	}

	// pagination: two newest, then the page before them
	page, err := s.MessagesBefore(ctx, 100, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].ID)
	assert.Equal(t, int64(5), page[1].ID)

	page, err = s.MessagesBefore(ctx, 100, page[0].ID, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].ID)
	assert.Equal(t, int64(3), page[1].ID)

	require.NoError(t, s.UpdateMessageBody(ctx, 3, "edited-body"))
	message, err := s.MessageByID(ctx, 3)
	require.NoError(t, err)
	assert.True(t, message.Edited)
	assert.NotNil(t, message.EditedAt)
	assert.Equal(t, "edited-body", message.Content)

	require.NoError(t, s.DeleteMessage(ctx, 3))
	_, err = s.MessageByID(ctx, 3)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMessagePreviewAndPin(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	require.NoError(t, s.InsertMessage(ctx, models.Message{ID: 1, ChannelID: 100, AuthorID: 1}, "body"))

	require.NoError(t, s.UpdateMessagePreview(ctx, 1, models.LinkPreview{URL: "https://example.com", Title: "Example"}))
	require.NoError(t, s.SetMessagePinned(ctx, 1, true))

	message, err := s.MessageByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, message.Preview)
	assert.Equal(t, "Example", message.Preview.Title)
	assert.True(t, message.Pinned)
}

func TestAddReactionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	require.NoError(t, s.InsertMessage(ctx, models.Message{ID: 1, ChannelID: 100, AuthorID: 1}, "body"))

	reaction := models.Reaction{MessageID: 1, AccountID: 2, Emoji: "👍"}

	added, err := s.AddReaction(ctx, reaction)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.AddReaction(ctx, reaction)
	require.NoError(t, err)
	assert.False(t, added, "second add is a no-op, not an error")

	reactions, err := s.ReactionsForMessage(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)

	removed, err := s.RemoveReaction(ctx, reaction)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveReaction(ctx, reaction)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestUpsertReadState(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	require.NoError(t, s.UpsertReadState(ctx, 2, 100, 5))
	state, err := s.ReadState(ctx, 2, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(5), state.LastReadID)

	require.NoError(t, s.UpsertReadState(ctx, 2, 100, 9))
	state, err = s.ReadState(ctx, 2, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(9), state.LastReadID)
	assert.Zero(t, state.MentionCount)
}

func TestInvites(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	require.NoError(t, s.CreateInvite(ctx, models.Invite{Code: "abc-123", GuildID: 10, CreatorID: 1}))

	guildID, err := s.GuildIDForInvite(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, int64(10), guildID)

	_, err = s.GuildIDForInvite(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBanMemberRemovesMembershipAndSticks(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	require.NoError(t, s.BanMember(ctx, 10, 2, 1, "spam"))

	isMember, err := s.IsMember(ctx, 10, 2)
	require.NoError(t, err)
	assert.False(t, isMember, "a ban removes the membership")

	banned, err := s.IsBanned(ctx, 10, 2)
	require.NoError(t, err)
	assert.True(t, banned)

	// a repeat ban keeps the original record instead of erroring
	require.NoError(t, s.BanMember(ctx, 10, 2, 1, "still spam"))

	require.NoError(t, s.UnbanMember(ctx, 10, 2))
	banned, err = s.IsBanned(ctx, 10, 2)
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestRemoveMemberDropsRoleLinks(t *testing.T) {
	s := newTestStore(t)
	seedGuild(t, s)
	ctx := context.Background()

	require.NoError(t, s.CreateRole(ctx, models.Role{ID: 1001, GuildID: 10, Name: "mods", Position: 1}))
	require.NoError(t, s.AssignRole(ctx, 10, 2, 1001))
	require.NoError(t, s.RemoveMember(ctx, 10, 2))

	_, isMember, err := s.MemberRoles(ctx, 10, 2)
	require.NoError(t, err)
	assert.False(t, isMember)

	memberIDs, err := s.GuildMemberIDs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, memberIDs)
}

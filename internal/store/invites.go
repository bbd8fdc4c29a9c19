package store

import (
	"context"

	"guildgate-backend/internal/models"
)

func (s *Store) CreateInvite(ctx context.Context, invite models.Invite) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO invites (code, guild_id, creator_id) VALUES(?, ?, ?)",
		invite.Code, invite.GuildID, invite.CreatorID)
	return err
}

func (s *Store) GuildIDForInvite(ctx context.Context, code string) (int64, error) {
	var guildID int64
	err := s.db.QueryRowContext(ctx, "SELECT guild_id FROM invites WHERE code = ?", code).Scan(&guildID)
	if err != nil {
		return 0, notFound(err, "invite")
	}
	return guildID, nil
}

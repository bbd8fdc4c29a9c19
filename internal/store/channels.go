package store

import (
	"context"
	"fmt"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/models"
)

func (s *Store) CreateChannel(ctx context.Context, channel models.Channel) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO channels (id, guild_id, name, kind, position) VALUES(?, ?, ?, ?, ?)",
		channel.ID, channel.GuildID, channel.Name, channel.Kind, channel.Position)
	return err
}

func (s *Store) ChannelByID(ctx context.Context, channelID int64) (models.Channel, error) {
	var channel models.Channel
	err := s.db.QueryRowContext(ctx,
		"SELECT id, guild_id, name, kind, position FROM channels WHERE id = ?", channelID).
		Scan(&channel.ID, &channel.GuildID, &channel.Name, &channel.Kind, &channel.Position)
	if err != nil {
		return models.Channel{}, notFound(err, "channel")
	}
	return channel, nil
}

// DeleteChannel refuses to remove a guild's last channel.
func (s *Store) DeleteChannel(ctx context.Context, channelID int64) error {
	channel, err := s.ChannelByID(ctx, channelID)
	if err != nil {
		return err
	}

	var count int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM channels WHERE guild_id = ?", channel.GuildID).Scan(&count)
	if err != nil {
		return err
	}
	if count <= 1 {
		return fmt.Errorf("%w: a guild needs at least one channel", apperr.ErrValidation)
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", channelID)
	return err
}

func (s *Store) RenameChannel(ctx context.Context, channelID int64, name string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE channels SET name = ? WHERE id = ?", name, channelID)
	return err
}

func (s *Store) ChannelsForGuild(ctx context.Context, guildID int64) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, guild_id, name, kind, position FROM channels WHERE guild_id = ? ORDER BY position, id", guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.Channel = []models.Channel{}
	for rows.Next() {
		var channel models.Channel
		if err := rows.Scan(&channel.ID, &channel.GuildID, &channel.Name, &channel.Kind, &channel.Position); err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

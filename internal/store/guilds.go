package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"guildgate-backend/internal/apperr"
	"guildgate-backend/internal/models"
)

// CreateGuild inserts the guild together with its everyone-role, its first
// channel and the owner's membership in one transaction, so a guild is never
// observable without a channel and exactly one default role.
func (s *Store) CreateGuild(ctx context.Context, guild models.Guild, defaultRole models.Role, firstChannel models.Channel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "INSERT INTO guilds (id, owner_id, name, picture) VALUES(?, ?, ?, ?)",
		guild.ID, guild.OwnerID, guild.Name, guild.Picture)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO roles (id, guild_id, name, permissions, position, is_default) VALUES(?, ?, ?, ?, ?, ?)",
		defaultRole.ID, guild.ID, defaultRole.Name, defaultRole.Permissions, 0, true)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO channels (id, guild_id, name, kind, position) VALUES(?, ?, ?, ?, ?)",
		firstChannel.ID, guild.ID, firstChannel.Name, firstChannel.Kind, 0)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO memberships (guild_id, account_id) VALUES(?, ?)",
		guild.ID, guild.OwnerID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GuildOwnerID returns 0 for an unknown guild; the permission engine treats
// that as a deny rather than an error.
func (s *Store) GuildOwnerID(ctx context.Context, guildID int64) (int64, error) {
	var ownerID int64
	err := s.db.QueryRowContext(ctx, "SELECT owner_id FROM guilds WHERE id = ?", guildID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrDependency, err)
	}
	return ownerID, nil
}

func (s *Store) RenameGuild(ctx context.Context, guildID int64, name string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE guilds SET name = ? WHERE id = ?", name, guildID)
	return err
}

func (s *Store) DeleteGuild(ctx context.Context, guildID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM guilds WHERE id = ?", guildID)
	return err
}

func (s *Store) GuildsForAccount(ctx context.Context, accountID int64) ([]models.Guild, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			guilds.id, guilds.owner_id, guilds.name, guilds.picture
		FROM
			guilds
		JOIN
			memberships ON memberships.guild_id = guilds.id
		WHERE
			memberships.account_id = ?
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guilds []models.Guild = []models.Guild{}
	for rows.Next() {
		var guild models.Guild
		if err := rows.Scan(&guild.ID, &guild.OwnerID, &guild.Name, &guild.Picture); err != nil {
			return nil, err
		}
		guilds = append(guilds, guild)
	}
	return guilds, rows.Err()
}

func (s *Store) GuildIDsForAccount(ctx context.Context, accountID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT guild_id FROM memberships WHERE account_id = ?", accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guildIDs []int64
	for rows.Next() {
		var guildID int64
		if err := rows.Scan(&guildID); err != nil {
			return nil, err
		}
		guildIDs = append(guildIDs, guildID)
	}
	return guildIDs, rows.Err()
}

func (s *Store) IsMember(ctx context.Context, guildID int64, accountID int64) (bool, error) {
	var isMember bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM memberships WHERE guild_id = ? AND account_id = ?)", guildID, accountID).Scan(&isMember)
	return isMember, err
}

func (s *Store) AddMember(ctx context.Context, guildID int64, accountID int64) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO memberships (guild_id, account_id) VALUES(?, ?)", guildID, accountID)
	return err
}

func (s *Store) RemoveMember(ctx context.Context, guildID int64, accountID int64) error {
	// membership_roles rows go with the membership via the cascade
	_, err := s.db.ExecContext(ctx, "DELETE FROM memberships WHERE guild_id = ? AND account_id = ?", guildID, accountID)
	return err
}

func (s *Store) GuildMemberIDs(ctx context.Context, guildID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT account_id FROM memberships WHERE guild_id = ?", guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberIDs []int64
	for rows.Next() {
		var accountID int64
		if err := rows.Scan(&accountID); err != nil {
			return nil, err
		}
		memberIDs = append(memberIDs, accountID)
	}
	return memberIDs, rows.Err()
}

func (s *Store) GuildMembers(ctx context.Context, guildID int64) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			accounts.id, accounts.display_name, accounts.picture
		FROM
			accounts
		JOIN
			memberships ON memberships.account_id = accounts.id
		WHERE
			memberships.guild_id = ?
	`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Account = []models.Account{}
	for rows.Next() {
		var member models.Account
		if err := rows.Scan(&member.ID, &member.DisplayName, &member.Picture); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

package store

import (
	"context"
)

// BanMember records the ban and removes the membership in one transaction,
// so a banned account can never race a rejoin between the two.
func (s *Store) BanMember(ctx context.Context, guildID int64, accountID int64, bannedBy int64, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// a repeat ban keeps the original record
	var banned bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM bans WHERE guild_id = ? AND account_id = ?)", guildID, accountID).Scan(&banned)
	if err != nil {
		return err
	}
	if !banned {
		_, err = tx.ExecContext(ctx, "INSERT INTO bans (guild_id, account_id, banned_by, reason) VALUES(?, ?, ?, ?)",
			guildID, accountID, bannedBy, reason)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM memberships WHERE guild_id = ? AND account_id = ?", guildID, accountID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) UnbanMember(ctx context.Context, guildID int64, accountID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM bans WHERE guild_id = ? AND account_id = ?", guildID, accountID)
	return err
}

func (s *Store) IsBanned(ctx context.Context, guildID int64, accountID int64) (bool, error) {
	var banned bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM bans WHERE guild_id = ? AND account_id = ?)", guildID, accountID).Scan(&banned)
	return banned, err
}

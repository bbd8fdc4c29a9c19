package store

import (
	"context"

	"guildgate-backend/internal/models"
)

// UpsertReadState moves the account's read cursor for a channel and clears
// the mention counter. Update-then-insert keeps it portable across both
// backends.
func (s *Store) UpsertReadState(ctx context.Context, accountID int64, channelID int64, lastReadID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE read_states SET last_read_id = ?, mention_count = 0 WHERE account_id = ? AND channel_id = ?",
		lastReadID, accountID, channelID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO read_states (account_id, channel_id, last_read_id, mention_count) VALUES(?, ?, ?, 0)",
			accountID, channelID, lastReadID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// IncrementMentionCount bumps the counter a mention-bearing message earns.
// Marking the channel read clears it again.
func (s *Store) IncrementMentionCount(ctx context.Context, accountID int64, channelID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE read_states SET mention_count = mention_count + 1 WHERE account_id = ? AND channel_id = ?",
		accountID, channelID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO read_states (account_id, channel_id, last_read_id, mention_count) VALUES(?, ?, 0, 1)",
			accountID, channelID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) ReadState(ctx context.Context, accountID int64, channelID int64) (models.ReadState, error) {
	var state models.ReadState
	err := s.db.QueryRowContext(ctx,
		"SELECT account_id, channel_id, last_read_id, mention_count FROM read_states WHERE account_id = ? AND channel_id = ?",
		accountID, channelID).
		Scan(&state.AccountID, &state.ChannelID, &state.LastReadID, &state.MentionCount)
	if err != nil {
		return models.ReadState{}, notFound(err, "read state")
	}
	return state, nil
}

package store

import (
	"context"

	"guildgate-backend/internal/models"
)

// AddReaction is idempotent: adding the same (message, account, emoji) twice
// leaves one row and reports added=false the second time.
func (s *Store) AddReaction(ctx context.Context, reaction models.Reaction) (added bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM reactions WHERE message_id = ? AND account_id = ? AND emoji = ?)",
		reaction.MessageID, reaction.AccountID, reaction.Emoji).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists {
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO reactions (message_id, account_id, emoji) VALUES(?, ?, ?)",
		reaction.MessageID, reaction.AccountID, reaction.Emoji)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (s *Store) RemoveReaction(ctx context.Context, reaction models.Reaction) (removed bool, err error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM reactions WHERE message_id = ? AND account_id = ? AND emoji = ?",
		reaction.MessageID, reaction.AccountID, reaction.Emoji)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ReactionsForMessage(ctx context.Context, messageID int64) ([]models.Reaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT message_id, account_id, emoji FROM reactions WHERE message_id = ?", messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []models.Reaction = []models.Reaction{}
	for rows.Next() {
		var reaction models.Reaction
		if err := rows.Scan(&reaction.MessageID, &reaction.AccountID, &reaction.Emoji); err != nil {
			return nil, err
		}
		reactions = append(reactions, reaction)
	}
	return reactions, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"guildgate-backend/internal/models"
)

// Messages come back with Content holding the stored (encrypted) body; the
// pipeline and REST layer decode before anything reaches a wire.

func (s *Store) InsertMessage(ctx context.Context, message models.Message, body string) error {
	attachments, err := json.Marshal(message.Attachments)
	if err != nil {
		return err
	}

	var replyTo sql.NullInt64
	if message.ReplyToID != 0 {
		replyTo = sql.NullInt64{Int64: message.ReplyToID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO messages (id, channel_id, author_id, body, attachments, reply_to_id, pinned, edited) VALUES(?, ?, ?, ?, ?, ?, ?, ?)",
		message.ID, message.ChannelID, message.AuthorID, body, string(attachments), replyTo, false, false)
	return err
}

// MessageMeta returns the channel and author of a message, enough for
// authorization checks without decrypting anything.
func (s *Store) MessageMeta(ctx context.Context, messageID int64) (channelID int64, authorID int64, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT channel_id, author_id FROM messages WHERE id = ?", messageID).Scan(&channelID, &authorID)
	if err != nil {
		return 0, 0, notFound(err, "message")
	}
	return channelID, authorID, nil
}

func (s *Store) MessageByID(ctx context.Context, messageID int64) (models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			messages.id, messages.channel_id, messages.author_id, messages.body,
			messages.attachments, messages.reply_to_id, messages.pinned,
			messages.edited, messages.edited_at, messages.preview,
			accounts.display_name, accounts.picture
		FROM
			messages
		JOIN
			accounts ON messages.author_id = accounts.id
		WHERE
			messages.id = ?
	`, messageID)

	message, err := scanMessage(row.Scan)
	if err != nil {
		return models.Message{}, notFound(err, "message")
	}
	return message, nil
}

func (s *Store) UpdateMessageBody(ctx context.Context, messageID int64, body string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE messages SET body = ?, edited = ?, edited_at = ? WHERE id = ?",
		body, true, time.Now().UTC(), messageID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound(sql.ErrNoRows, "message")
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, messageID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", messageID)
	return err
}

func (s *Store) SetMessagePinned(ctx context.Context, messageID int64, pinned bool) error {
	_, err := s.db.ExecContext(ctx, "UPDATE messages SET pinned = ? WHERE id = ?", pinned, messageID)
	return err
}

func (s *Store) UpdateMessagePreview(ctx context.Context, messageID int64, preview models.LinkPreview) error {
	previewBytes, err := json.Marshal(preview)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE messages SET preview = ? WHERE id = ?", string(previewBytes), messageID)
	return err
}

// MessagesBefore pages a channel's history backwards from beforeID (0 means
// newest). Results are ascending by id, which is the persisted channel order.
func (s *Store) MessagesBefore(ctx context.Context, channelID int64, beforeID int64, limit int) ([]models.Message, error) {
	if beforeID == 0 {
		beforeID = int64(^uint64(0) >> 1)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			messages.id, messages.channel_id, messages.author_id, messages.body,
			messages.attachments, messages.reply_to_id, messages.pinned,
			messages.edited, messages.edited_at, messages.preview,
			accounts.display_name, accounts.picture
		FROM
			messages
		JOIN
			accounts ON messages.author_id = accounts.id
		WHERE
			messages.channel_id = ? AND messages.id < ?
		ORDER BY
			messages.id DESC
		LIMIT ?
	`, channelID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message = []models.Message{}
	for rows.Next() {
		message, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// flip to ascending
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessage(scan func(...any) error) (models.Message, error) {
	var message models.Message
	var attachments string
	var replyTo sql.NullInt64
	var editedAt sql.NullTime
	var preview sql.NullString

	err := scan(&message.ID, &message.ChannelID, &message.AuthorID, &message.Content,
		&attachments, &replyTo, &message.Pinned, &message.Edited, &editedAt, &preview,
		&message.Author.DisplayName, &message.Author.Picture)
	if err != nil {
		return models.Message{}, err
	}

	message.Author.ID = message.AuthorID
	if replyTo.Valid {
		message.ReplyToID = replyTo.Int64
	}
	if editedAt.Valid {
		message.EditedAt = &editedAt.Time
	}
	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &message.Attachments); err != nil {
			return models.Message{}, err
		}
	}
	if message.Attachments == nil {
		message.Attachments = []models.Attachment{}
	}
	if preview.Valid && preview.String != "" {
		var linkPreview models.LinkPreview
		if err := json.Unmarshal([]byte(preview.String), &linkPreview); err != nil {
			return models.Message{}, err
		}
		message.Preview = &linkPreview
	}
	return message, nil
}

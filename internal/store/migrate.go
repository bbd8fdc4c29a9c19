package store

import (
	"context"
)

// RawBody is a message row as stored, without decryption. Only the
// encryption migration reads bodies this way.
type RawBody struct {
	MessageID int64
	Body      string
}

func (s *Store) MessageBodiesAfter(ctx context.Context, afterID int64, limit int) ([]RawBody, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, body FROM messages WHERE id > ? ORDER BY id ASC LIMIT ?", afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bodies []RawBody
	for rows.Next() {
		var body RawBody
		if err := rows.Scan(&body.MessageID, &body.Body); err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}
	return bodies, rows.Err()
}

// RewriteMessageBody replaces the stored body without touching the edited
// flag; the content is unchanged, only its at-rest shape.
func (s *Store) RewriteMessageBody(ctx context.Context, messageID int64, body string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE messages SET body = ? WHERE id = ?", body, messageID)
	return err
}

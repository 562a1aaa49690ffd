package storage

import (
	"context"
	"fmt"
	"strings"

	"pricewatch/internal/model"
)

// AppendSourceMessage records a channel post and keeps only the newest keep
// posts of that source. Replays of the same post are ignored.
func (s *SQLStore) AppendSourceMessage(ctx context.Context, msg model.Message, keep int) error {
	key := msg.SourceKey()
	if key == "" || strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	_, err := s.exec(ctx,
		`INSERT INTO source_messages(source_key, message_id, handle, title, body, posted_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_key, message_id) DO NOTHING`,
		key, msg.MessageID, strings.ToLower(msg.SourceHandle), msg.SourceTitle, msg.Text, toMillis(msg.PostedAt),
	)
	if err != nil {
		return fmt.Errorf("storage: append source message: %w", err)
	}
	if keep <= 0 {
		return nil
	}
	_, err = s.exec(ctx,
		`DELETE FROM source_messages WHERE source_key = ? AND message_id NOT IN (
		     SELECT message_id FROM source_messages WHERE source_key = ?
		     ORDER BY message_id DESC LIMIT ?
		 )`, key, key, keep)
	if err != nil {
		return fmt.Errorf("storage: prune source messages: %w", err)
	}
	return nil
}

// RecentSourceMessages returns up to limit posts, newest first. identifier may
// be a numeric chat id or a public handle.
func (s *SQLStore) RecentSourceMessages(ctx context.Context, identifier string, limit int) ([]model.Message, error) {
	identifier = strings.TrimPrefix(strings.TrimSpace(identifier), "@")
	if identifier == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := s.query(ctx,
		`SELECT source_key, message_id, handle, title, body, posted_at FROM source_messages
		 WHERE source_key = ? OR handle = ?
		 ORDER BY message_id DESC LIMIT ?`,
		identifier, strings.ToLower(identifier), limit)
	if err != nil {
		return nil, fmt.Errorf("storage: recent source messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			key    string
			msg    model.Message
			posted int64
		)
		if err := rows.Scan(&key, &msg.MessageID, &msg.SourceHandle, &msg.SourceTitle, &msg.Text, &posted); err != nil {
			return nil, err
		}
		if id, ok := model.ParseChatID(key); ok {
			msg.SourceID = id
		}
		msg.PostedAt = fromMillis(posted)
		out = append(out, msg)
	}
	return out, rows.Err()
}

package messaging

import (
	"context"
	"database/sql"

	"support-gateway/pkg/utils"
)

// NOTE: This store assumes the following tables exist:
// - messages (id PRIMARY KEY, conversation_id, sender_id, sender_role,
//   receiver_id, receiver_role, content, message_type, duration, media_url,
//   latitude, longitude, address, call_id, call_status, created_at)
// - conversations (id PRIMARY KEY, last_message, last_message_type,
//   last_message_at)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InsertMessage writes the message and refreshes the conversation preview
// in one transaction so a conversation list never shows a preview for a
// message that was not stored.
func (s *PostgresStore) InsertMessage(ctx context.Context, m Message) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const insertQ = `
INSERT INTO messages (
  id, conversation_id, sender_id, sender_role, receiver_id, receiver_role,
  content, message_type, duration, media_url, latitude, longitude, address,
  call_id, call_status, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
`
		if _, err := tx.ExecContext(ctx, insertQ,
			m.ID,
			m.ConversationID,
			m.SenderID,
			m.SenderRole,
			m.ReceiverID,
			m.ReceiverRole,
			m.Content,
			m.MessageType,
			m.DurationSeconds,
			m.MediaURL,
			m.Latitude,
			m.Longitude,
			m.Address,
			m.CallID,
			m.CallStatus,
			m.Timestamp,
		); err != nil {
			return err
		}

		const previewQ = `
UPDATE conversations
SET last_message = $2, last_message_type = $3, last_message_at = $4
WHERE id = $1
`
		_, err := tx.ExecContext(ctx, previewQ, m.ConversationID, m.Content, m.MessageType, m.Timestamp)
		return err
	})
}

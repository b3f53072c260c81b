package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"noteshare-chat/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the Postgres Store.
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const chatColumns = "id, is_group, title, dm_key, created_at"

func scanChat(row *sql.Row) (*Chat, error) {
	c := &Chat{}
	err := row.Scan(&c.ID, &c.IsGroup, &c.Title, &c.DMKey, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) ChatByID(ctx context.Context, id int64) (*Chat, error) {
	return scanChat(r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = $1`, id))
}

func (r *Repository) ChatByDirectKey(ctx context.Context, key string) (*Chat, error) {
	return scanChat(r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE dm_key = $1`, key))
}

func (r *Repository) CreateDirectChat(ctx context.Context, key string, a, b int64) (*Chat, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	c := &Chat{IsGroup: false, DMKey: &key}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO chats (is_group, dm_key) VALUES (FALSE, $1) RETURNING id, created_at`,
		key).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race with the counterparty's first contact.
			return nil, fmt.Errorf("direct chat %s exists: %w", key, apperr.ErrConflict)
		}
		return nil, err
	}

	for _, pid := range []int64{a, b} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (chat_id, profile_id) VALUES ($1, $2)`,
			c.ID, pid); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) CreateGroupChat(ctx context.Context, title *string, memberIDs []int64) (*Chat, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	c := &Chat{IsGroup: true, Title: title}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO chats (is_group, title) VALUES (TRUE, $1) RETURNING id, created_at`,
		title).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, pid := range memberIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (chat_id, profile_id) VALUES ($1, $2)`,
			c.ID, pid); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) IsParticipant(ctx context.Context, chatID, profileID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM participants WHERE chat_id = $1 AND profile_id = $2)`,
		chatID, profileID).Scan(&exists)
	return exists, err
}

func (r *Repository) Participants(ctx context.Context, chatID int64) ([]Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.chat_id, p.profile_id, pr.display_name, p.last_read_at, p.joined_at
		FROM participants p
		JOIN profiles pr ON pr.id = p.profile_id
		WHERE p.chat_id = $1
		ORDER BY p.profile_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ChatID, &p.ProfileID, &p.DisplayName, &p.LastReadAt, &p.JoinedAt); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

func (r *Repository) AdvanceLastRead(ctx context.Context, chatID, profileID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants
		SET last_read_at = GREATEST(COALESCE(last_read_at, 'epoch'::timestamptz), $3)
		WHERE chat_id = $1 AND profile_id = $2`,
		chatID, profileID, at)
	return err
}

const messageColumns = `id, chat_id, sender_id, text, media_url, media_kind,
	is_delivered, is_forwarded, is_deleted, reply_to_id, created_at`

func scanMessage(row *sql.Row) (*Message, error) {
	m := &Message{}
	err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.MediaURL, &m.MediaKind,
		&m.IsDelivered, &m.IsForwarded, &m.IsDeleted, &m.ReplyToID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) InsertMessage(ctx context.Context, m *Message) (*Message, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO messages
			(chat_id, sender_id, text, media_url, media_kind, is_delivered, is_forwarded, reply_to_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		m.ChatID, m.SenderID, m.Text, m.MediaURL, m.MediaKind,
		m.IsDelivered, m.IsForwarded, m.ReplyToID).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) MessageByID(ctx context.Context, id int64) (*Message, error) {
	return scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (r *Repository) MessageInChat(ctx context.Context, chatID, messageID int64) (*Message, error) {
	return scanMessage(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 AND chat_id = $2`,
		messageID, chatID))
}

func (r *Repository) UpdateMessageText(ctx context.Context, id int64, text string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET text = $2 WHERE id = $1`, id, text)
	return err
}

func (r *Repository) SoftDeleteMessage(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET text = $2, media_url = NULL, media_kind = NULL, is_deleted = TRUE
		WHERE id = $1`,
		id, DeletedPlaceholder)
	return err
}

// ListMessages returns a newest-first page. Ordering is insertion order:
// created_at with id as the tie-breaker.
func (r *Repository) ListMessages(ctx context.Context, chatID int64, beforeID *int64, limit int) ([]Message, error) {
	args := []any{chatID, limit}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = $1`
	if beforeID != nil {
		query += ` AND id < $3`
		args = append(args, *beforeID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.MediaURL, &m.MediaKind,
			&m.IsDelivered, &m.IsForwarded, &m.IsDeleted, &m.ReplyToID, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *Repository) InsertReadReceipt(ctx context.Context, messageID, readerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, reader_id) VALUES ($1, $2)
		ON CONFLICT (message_id, reader_id) DO NOTHING`,
		messageID, readerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) ReadReceipts(ctx context.Context, messageID int64) ([]ReadReceipt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT message_id, reader_id, read_at FROM message_reads WHERE message_id = $1 ORDER BY read_at`,
		messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []ReadReceipt
	for rows.Next() {
		var rr ReadReceipt
		if err := rows.Scan(&rr.MessageID, &rr.ReaderID, &rr.ReadAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, rr)
	}
	return receipts, rows.Err()
}

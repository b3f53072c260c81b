package chat

import (
	"fmt"
	"time"

	"noteshare-chat/internal/media"
)

// DeletedPlaceholder replaces the text of a soft-deleted message.
const DeletedPlaceholder = "Message deleted"

type Chat struct {
	ID        int64     `json:"id"`
	IsGroup   bool      `json:"is_group"`
	Title     *string   `json:"title,omitempty"`
	DMKey     *string   `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Participant links a profile to a chat. LastReadAt is the timestamp of
// the newest message the member has acknowledged.
type Participant struct {
	ChatID      int64      `json:"chat_id"`
	ProfileID   int64      `json:"profile_id"`
	DisplayName string     `json:"display_name"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`
	JoinedAt    time.Time  `json:"joined_at"`
}

type Message struct {
	ID          int64       `json:"id"`
	ChatID      int64       `json:"chat_id"`
	SenderID    int64       `json:"sender_id"`
	Text        *string     `json:"text,omitempty"`
	MediaURL    *string     `json:"media_url,omitempty"`
	MediaKind   *media.Kind `json:"media_kind,omitempty"`
	IsDelivered bool        `json:"is_delivered"`
	IsForwarded bool        `json:"is_forwarded"`
	IsDeleted   bool        `json:"is_deleted"`
	ReplyToID   *int64      `json:"reply_to_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ReadReceipt is authoritative proof that reader has seen message.
type ReadReceipt struct {
	MessageID int64     `json:"message_id"`
	ReaderID  int64     `json:"reader_id"`
	ReadAt    time.Time `json:"read_at"`
}

// DirectKey builds the canonical order-independent key for a two-party
// chat. A unique index on this key is what guarantees at most one direct
// chat per pair.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%d", a, b)
}

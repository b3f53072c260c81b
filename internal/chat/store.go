package chat

import (
	"context"
	"time"
)

// Store is the persistence surface of the chat core. The SQL
// implementation lives in repository.go; tests use an in-memory fake.
type Store interface {
	// Chats
	ChatByID(ctx context.Context, id int64) (*Chat, error)
	ChatByDirectKey(ctx context.Context, key string) (*Chat, error)
	// CreateDirectChat inserts the chat and both participant rows in one
	// transaction. Returns ErrConflict when the key already exists so the
	// caller can fall back to a read.
	CreateDirectChat(ctx context.Context, key string, a, b int64) (*Chat, error)
	CreateGroupChat(ctx context.Context, title *string, memberIDs []int64) (*Chat, error)

	// Participants
	IsParticipant(ctx context.Context, chatID, profileID int64) (bool, error)
	Participants(ctx context.Context, chatID int64) ([]Participant, error)
	// AdvanceLastRead moves the cursor forward, never backward.
	AdvanceLastRead(ctx context.Context, chatID, profileID int64, at time.Time) error

	// Messages
	InsertMessage(ctx context.Context, m *Message) (*Message, error)
	MessageByID(ctx context.Context, id int64) (*Message, error)
	MessageInChat(ctx context.Context, chatID, messageID int64) (*Message, error)
	UpdateMessageText(ctx context.Context, id int64, text string) error
	SoftDeleteMessage(ctx context.Context, id int64) error
	ListMessages(ctx context.Context, chatID int64, beforeID *int64, limit int) ([]Message, error)

	// Read receipts
	// InsertReadReceipt is idempotent; created is false when the receipt
	// already existed.
	InsertReadReceipt(ctx context.Context, messageID, readerID int64) (created bool, err error)
	ReadReceipts(ctx context.Context, messageID int64) ([]ReadReceipt, error)
}

package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"noteshare-chat/internal/apperr"
	"noteshare-chat/internal/media"
	"noteshare-chat/internal/metrics"
	"noteshare-chat/internal/profile"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Actor is the verified caller identity handed down by the auth layer.
type Actor struct {
	UserID   int64
	Username string
}

// ProfileResolver finds-or-creates the participant handle for a caller.
type ProfileResolver interface {
	Ensure(ctx context.Context, userID int64, displayName string) (*profile.Profile, error)
	ByID(ctx context.Context, id int64) (*profile.Profile, error)
	ByIDs(ctx context.Context, ids []int64) ([]profile.Profile, error)
}

// Notifier pushes live events to participants' connections. Offline
// participants simply miss the event; history is the durable record.
type Notifier interface {
	NotifyChat(chatID int64, event string, payload any)
}

// Upload is a media payload handed in by the transport layer.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	Caption     *string
}

type Service struct {
	store    Store
	profiles ProfileResolver
	uploader media.Storage
	notify   Notifier
	log      *zap.SugaredLogger

	// strictRefs requires reply/forward actors to also be participants
	// of the referenced message's chat.
	strictRefs bool
}

func NewService(store Store, profiles ProfileResolver, uploader media.Storage,
	notify Notifier, log *zap.SugaredLogger, strictRefs bool) *Service {
	return &Service{
		store:      store,
		profiles:   profiles,
		uploader:   uploader,
		notify:     notify,
		log:        log,
		strictRefs: strictRefs,
	}
}

func (s *Service) me(ctx context.Context, actor Actor) (*profile.Profile, error) {
	return s.profiles.Ensure(ctx, actor.UserID, actor.Username)
}

// Identify resolves (find-or-create) the caller's participant handle.
// Used at the websocket handshake before the connection joins the hub.
func (s *Service) Identify(ctx context.Context, actor Actor) (*profile.Profile, error) {
	return s.me(ctx, actor)
}

// CreateDirect is idempotent: concurrent first-contact requests from both
// sides converge on one chat via the dm_key unique index.
func (s *Service) CreateDirect(ctx context.Context, actor Actor, otherID int64) (*Chat, error) {
	me, err := s.me(ctx, actor)
	if err != nil {
		return nil, err
	}
	if otherID <= 0 || otherID == me.ID {
		return nil, fmt.Errorf("direct chat requires exactly one counterparty: %w", apperr.ErrInvalidArgument)
	}
	if _, err := s.profiles.ByID(ctx, otherID); err != nil {
		return nil, err
	}

	key := DirectKey(me.ID, otherID)
	if chat, err := s.store.ChatByDirectKey(ctx, key); err == nil {
		return chat, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	chat, err := s.store.CreateDirectChat(ctx, key, me.ID, otherID)
	if isConflict(err) {
		// Someone else created it between our read and write.
		return s.store.ChatByDirectKey(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	metrics.ChatsCreated.WithLabelValues("direct").Inc()
	return chat, nil
}

func (s *Service) CreateGroup(ctx context.Context, actor Actor, memberIDs []int64, title *string) (*Chat, error) {
	me, err := s.me(ctx, actor)
	if err != nil {
		return nil, err
	}

	ids := lo.Uniq(append([]int64{me.ID}, memberIDs...))
	if len(ids) < 2 {
		return nil, fmt.Errorf("group chat requires at least one other member: %w", apperr.ErrInvalidArgument)
	}
	if _, err := s.profiles.ByIDs(ctx, ids); err != nil {
		return nil, err
	}

	chat, err := s.store.CreateGroupChat(ctx, title, ids)
	if err != nil {
		return nil, err
	}
	metrics.ChatsCreated.WithLabelValues("group").Inc()
	return chat, nil
}

func (s *Service) requireParticipant(ctx context.Context, chatID, profileID int64) error {
	ok, err := s.store.IsParticipant(ctx, chatID, profileID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("profile %d is not a participant of chat %d: %w",
			profileID, chatID, apperr.ErrForbidden)
	}
	return nil
}

// record stores a new message and keeps the read-state signals in sync:
// the sender auto-reads their own message, so a receipt is created and the
// sender's cursor advances before anyone else sees the event.
func (s *Service) record(ctx context.Context, m *Message, kind string) (*Message, error) {
	saved, err := s.store.InsertMessage(ctx, m)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.InsertReadReceipt(ctx, saved.ID, saved.SenderID); err != nil {
		return nil, err
	}
	if err := s.store.AdvanceLastRead(ctx, saved.ChatID, saved.SenderID, saved.CreatedAt); err != nil {
		return nil, err
	}

	metrics.MessagesSent.WithLabelValues(kind).Inc()
	s.log.Debugw("message stored", "chat_id", saved.ChatID, "message_id", saved.ID, "kind", kind)
	s.notify.NotifyChat(saved.ChatID, EventNewMessage, saved)
	return saved, nil
}

func (s *Service) Send(ctx context.Context, actor Actor, chatID int64, text string) (*Message, error) {
	me, err := s.me(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, chatID, me.ID); err != nil {
		return nil, err
	}

	return s.record(ctx, &Message{
		ChatID:   chatID,
		SenderID: me.ID,
		Text:     &text,
	}, "text")
}

func (s *Service) SendMedia(ctx context.Context, actor Actor, chatID int64, up Upload) (*Message, error) {
	me, err := s.me(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, chatID, me.ID); err != nil {
		return nil, err
	}

	url, err := s.uploader.Upload(ctx, up.Filename, up.ContentType, bytes.NewReader(up.Data))
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	var kindPtr *media.Kind
	kind, ok := media.KindOf(up.ContentType)
	if !ok {
		kind, ok = media.SniffKind(up.Data)
	}
	if ok {
		kindPtr = &kind
	}

	// Media messages count as delivered immediately; there is no ack step.
	return s.record(ctx, &Message{
		ChatID:      chatID,
		SenderID:    me.ID,
		Text:        up.Caption,
		MediaURL:    &url,
		MediaKind:   kindPtr,
		IsDelivered: true,
	}, "media")
}

func (s *Service) Reply(ctx context.Context, actor Actor, chatID, parentID int64, text string) (*Message, error) {
	me, err := s.me(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, chatID, me.ID); err != nil {
		return nil, err
	}

	parent, err := s.store.MessageByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if s.strictRefs && parent.ChatID != chatID {
		if err := s.requireParticipant(ctx, parent.ChatID, me.ID); err != nil {
			return nil, err
		}
	}

	return s.record(ctx, &Message{
		ChatID:      chatID,
		SenderID:    me.ID,
		Text:        &text,
		ReplyToID:   &parent.ID,
		IsDelivered: true,
	}, "reply")
}

// Forward copies the original's content into a new message in the target
// chat. The actor only needs membership in the target chat unless strict
// reference checking is on.
func (s *Service) Forward(ctx context.Context, actor Actor, targetChatID, originalID int64) (*Message, error) {
	me, err := s.me(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, targetChatID, me.ID); err != nil {
		return nil, err
	}

	original, err := s.store.MessageByID(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if s.strictRefs {
		if err := s.requireParticipant(ctx, original.ChatID, me.ID); err != nil {
			return nil, err
		}
	}

	return s.record(ctx, &Message{
		ChatID:      targetChatID,
		SenderID:    me.ID,
		Text:        original.Text,
		MediaURL:    original.MediaURL,
		MediaKind:   original.MediaKind,
		IsForwarded: true,
		IsDelivered: true,
	}, "forward")
}

func (s *Service) Edit(ctx context.Context, actor Actor, messageID int64, newText string) (*Message, error) {
	me, err := s.me(ctx, actor)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != me.ID {
		return nil, fmt.Errorf("only the sender may edit: %w", apperr.ErrForbidden)
	}

	if err := s.store.UpdateMessageText(ctx, messageID, newText); err != nil {
		return nil, err
	}
	msg.Text = &newText
	return msg, nil
}

// Delete is a soft delete: the row keeps its identity and chat linkage,
// text becomes a placeholder, media is cleared.
func (s *Service) Delete(ctx context.Context, actor Actor, messageID int64) (*Message, error) {
	me, err := s.me(ctx, actor)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != me.ID {
		return nil, fmt.Errorf("only the sender may delete: %w", apperr.ErrForbidden)
	}

	if err := s.store.SoftDeleteMessage(ctx, messageID); err != nil {
		return nil, err
	}
	return s.store.MessageByID(ctx, messageID)
}

// MarkRead is idempotent. It creates the receipt if missing and advances
// the reader's cursor to at least the message's timestamp.
func (s *Service) MarkRead(ctx context.Context, actor Actor, chatID, messageID int64) error {
	me, err := s.me(ctx, actor)
	if err != nil {
		return err
	}

	msg, err := s.store.MessageInChat(ctx, chatID, messageID)
	if err != nil {
		return err
	}

	created, err := s.store.InsertReadReceipt(ctx, msg.ID, me.ID)
	if err != nil {
		return err
	}
	if err := s.store.AdvanceLastRead(ctx, chatID, me.ID, msg.CreatedAt); err != nil {
		return err
	}

	if created {
		metrics.ReadReceipts.Inc()
		s.notify.NotifyChat(chatID, EventReadUpdate, ReadUpdatePayload{
			ChatID:    chatID,
			ReaderID:  me.ID,
			MessageID: msg.ID,
		})
	}
	return nil
}

func (s *Service) Participants(ctx context.Context, chatID int64) ([]Participant, error) {
	return s.store.Participants(ctx, chatID)
}

// History is the reconnect catch-up path: clients that missed live events
// re-read the ordered log. Newest first, keyed by message id cursor.
func (s *Service) History(ctx context.Context, actor Actor, chatID int64, beforeID *int64, limit int) ([]Message, error) {
	me, err := s.me(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, chatID, me.ID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListMessages(ctx, chatID, beforeID, limit)
}

func (s *Service) Receipts(ctx context.Context, actor Actor, messageID int64) ([]ReadReceipt, error) {
	me, err := s.me(ctx, actor)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, msg.ChatID, me.ID); err != nil {
		return nil, err
	}
	return s.store.ReadReceipts(ctx, messageID)
}

func isNotFound(err error) bool { return errors.Is(err, apperr.ErrNotFound) }
func isConflict(err error) bool { return errors.Is(err, apperr.ErrConflict) }

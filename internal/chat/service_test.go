package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"noteshare-chat/internal/apperr"
	"noteshare-chat/internal/media"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func actorN(id int64) Actor {
	return Actor{UserID: id, Username: fmt.Sprintf("user%d", id)}
}

func newTestService(t *testing.T, strict bool, seed ...int64) (*Service, *fakeStore, *recordingNotifier) {
	t.Helper()
	store := newFakeStore()
	profiles := newFakeProfiles()
	notifier := &recordingNotifier{}
	for _, id := range seed {
		_, err := profiles.Ensure(context.Background(), id, fmt.Sprintf("user%d", id))
		require.NoError(t, err)
	}
	svc := NewService(store, profiles, fakeUploader{}, notifier, zap.NewNop().Sugar(), strict)
	return svc, store, notifier
}

func TestCreateDirect_IsIdempotentAcrossBothSides(t *testing.T) {
	svc, store, _ := newTestService(t, false, 1, 2)
	ctx := context.Background()

	first, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)
	require.NotNil(t, first.DMKey)
	require.Equal(t, "1-2", *first.DMKey)

	second, err := svc.CreateDirect(ctx, actorN(2), 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, store.chatCount())
}

func TestCreateDirect_ConcurrentFirstContactConvergesOnOneChat(t *testing.T) {
	svc, store, _ := newTestService(t, false, 1, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = svc.CreateDirect(ctx, actorN(1), 2)
			} else {
				_, err = svc.CreateDirect(ctx, actorN(2), 1)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, store.chatCount())
}

func TestCreateDirect_RejectsBadCounterparty(t *testing.T) {
	svc, _, _ := newTestService(t, false, 1, 2)
	ctx := context.Background()

	_, err := svc.CreateDirect(ctx, actorN(1), 1)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = svc.CreateDirect(ctx, actorN(1), 99)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateGroup_DedupesMembersAndIncludesCreator(t *testing.T) {
	svc, store, _ := newTestService(t, false, 1, 2, 3)
	ctx := context.Background()

	title := "project"
	chat, err := svc.CreateGroup(ctx, actorN(1), []int64{2, 3, 3, 2, 1}, &title)
	require.NoError(t, err)
	require.True(t, chat.IsGroup)

	parts, err := store.Participants(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, parts, 3)
}

func TestCreateGroup_RequiresAnotherMember(t *testing.T) {
	svc, _, _ := newTestService(t, false, 1)

	_, err := svc.CreateGroup(context.Background(), actorN(1), nil, nil)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = svc.CreateGroup(context.Background(), actorN(1), []int64{1, 1}, nil)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestCreateGroup_UnresolvableMemberFails(t *testing.T) {
	svc, _, _ := newTestService(t, false, 1, 2)

	_, err := svc.CreateGroup(context.Background(), actorN(1), []int64{2, 42}, nil)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSend_SenderAutoReadsOwnMessage(t *testing.T) {
	svc, store, notifier := newTestService(t, false, 1, 2)
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)

	msg, err := svc.Send(ctx, actorN(1), chat.ID, "hi")
	require.NoError(t, err)

	receipts, err := store.ReadReceipts(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.Equal(t, int64(1), receipts[0].ReaderID)

	p := store.participant(chat.ID, 1)
	require.NotNil(t, p.LastReadAt)
	require.Equal(t, msg.CreatedAt, *p.LastReadAt)

	require.Len(t, notifier.byEvent(EventNewMessage), 1)
}

func TestSend_NonParticipantForbidden(t *testing.T) {
	svc, _, _ := newTestService(t, false, 1, 2, 3)
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)

	_, err = svc.Send(ctx, actorN(3), chat.ID, "let me in")
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestMarkRead_IsIdempotentAndAdvancesCursor(t *testing.T) {
	svc, store, notifier := newTestService(t, false, 1, 2)
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)
	msg, err := svc.Send(ctx, actorN(1), chat.ID, "hi")
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, actorN(2), chat.ID, msg.ID))
	require.NoError(t, svc.MarkRead(ctx, actorN(2), chat.ID, msg.ID))

	receipts, err := store.ReadReceipts(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 2) // sender + reader, exactly once each

	p := store.participant(chat.ID, 2)
	require.NotNil(t, p.LastReadAt)
	require.False(t, p.LastReadAt.Before(msg.CreatedAt))

	// Only the first mark produced a read_update.
	require.Len(t, notifier.byEvent(EventReadUpdate), 1)
}

func TestMarkRead_CursorNeverMovesBackward(t *testing.T) {
	svc, store, _ := newTestService(t, false, 1, 2)
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)
	first, err := svc.Send(ctx, actorN(1), chat.ID, "one")
	require.NoError(t, err)
	second, err := svc.Send(ctx, actorN(1), chat.ID, "two")
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, actorN(2), chat.ID, second.ID))
	require.NoError(t, svc.MarkRead(ctx, actorN(2), chat.ID, first.ID))

	p := store.participant(chat.ID, 2)
	require.Equal(t, second.CreatedAt, *p.LastReadAt)
}

func TestMarkRead_MessageOutsideChatNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, false, 1, 2, 3)
	ctx := context.Background()

	chatA, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)
	chatB, err := svc.CreateDirect(ctx, actorN(1), 3)
	require.NoError(t, err)

	msg, err := svc.Send(ctx, actorN(1), chatA.ID, "hi")
	require.NoError(t, err)

	err = svc.MarkRead(ctx, actorN(1), chatB.ID, msg.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEdit_OnlySenderMayEdit(t *testing.T) {
	svc, _, _ := newTestService(t, false, 1, 2)
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)
	msg, err := svc.Send(ctx, actorN(1), chat.ID, "foo")
	require.NoError(t, err)

	edited, err := svc.Edit(ctx, actorN(1), msg.ID, "bar")
	require.NoError(t, err)
	require.Equal(t, "bar", *edited.Text)
	require.False(t, edited.IsDeleted)

	_, err = svc.Edit(ctx, actorN(2), msg.ID, "hijack")
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDelete_SoftDeletePreservesRowAndReceipts(t *testing.T) {
	svc, store, _ := newTestService(t, false, 1, 2)
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)

	up := Upload{Filename: "cat.png", ContentType: "image/png", Data: []byte{1, 2, 3}}
	msg, err := svc.SendMedia(ctx, actorN(1), chat.ID, up)
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, actorN(2), chat.ID, msg.ID))

	_, err = svc.Delete(ctx, actorN(2), msg.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	deleted, err := svc.Delete(ctx, actorN(1), msg.ID)
	require.NoError(t, err)
	require.Equal(t, msg.ID, deleted.ID)
	require.Equal(t, chat.ID, deleted.ChatID)
	require.True(t, deleted.IsDeleted)
	require.Equal(t, DeletedPlaceholder, *deleted.Text)
	require.Nil(t, deleted.MediaURL)
	require.Nil(t, deleted.MediaKind)

	receipts, err := store.ReadReceipts(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
}

func TestReply_MissingParentNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, false, 1, 2)
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)

	_, err = svc.Reply(ctx, actorN(1), chat.ID, 404, "to nothing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReply_CrossChatPolicy(t *testing.T) {
	ctx := context.Background()

	// Permissive: parent may live in a chat the actor is not part of.
	svc, _, _ := newTestService(t, false, 1, 2, 3)
	other, err := svc.CreateDirect(ctx, actorN(2), 3)
	require.NoError(t, err)
	parent, err := svc.Send(ctx, actorN(2), other.ID, "origin")
	require.NoError(t, err)

	mine, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)
	reply, err := svc.Reply(ctx, actorN(1), mine.ID, parent.ID, "quoting")
	require.NoError(t, err)
	require.Equal(t, parent.ID, *reply.ReplyToID)

	// Strict: same shape fails Forbidden.
	strictSvc, _, _ := newTestService(t, true, 1, 2, 3)
	other, err = strictSvc.CreateDirect(ctx, actorN(2), 3)
	require.NoError(t, err)
	parent, err = strictSvc.Send(ctx, actorN(2), other.ID, "origin")
	require.NoError(t, err)
	mine, err = strictSvc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)

	_, err = strictSvc.Reply(ctx, actorN(1), mine.ID, parent.ID, "quoting")
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestForward_CopiesContentIntoTargetChat(t *testing.T) {
	svc, _, _ := newTestService(t, false, 1, 2, 3)
	ctx := context.Background()

	source, err := svc.CreateDirect(ctx, actorN(2), 3)
	require.NoError(t, err)
	up := Upload{Filename: "clip.mp4", ContentType: "video/mp4", Data: []byte{9}}
	original, err := svc.SendMedia(ctx, actorN(2), source.ID, up)
	require.NoError(t, err)

	target, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)

	// Actor 1 is not in the source chat; permissive policy allows this.
	forwarded, err := svc.Forward(ctx, actorN(1), target.ID, original.ID)
	require.NoError(t, err)
	require.True(t, forwarded.IsForwarded)
	require.True(t, forwarded.IsDelivered)
	require.Equal(t, target.ID, forwarded.ChatID)
	require.Equal(t, *original.MediaURL, *forwarded.MediaURL)
	require.Equal(t, media.KindVideo, *forwarded.MediaKind)

	_, err = svc.Forward(ctx, actorN(3), target.ID, original.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden) // not in target chat
}

func TestDirectThreadScenario(t *testing.T) {
	svc, store, _ := newTestService(t, false, 1, 2)
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)

	hi, err := svc.Send(ctx, actorN(1), chat.ID, "hi")
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, actorN(2), chat.ID, hi.ID))

	caption := "pic"
	pic, err := svc.SendMedia(ctx, actorN(1), chat.ID, Upload{
		Filename:    "pic.png",
		ContentType: "image/png",
		Data:        []byte{0x89, 0x50},
		Caption:     &caption,
	})
	require.NoError(t, err)

	msgs, err := svc.History(ctx, actorN(1), chat.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	receipts, err := store.ReadReceipts(ctx, hi.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 2)

	require.Equal(t, media.KindImage, *pic.MediaKind)
	require.True(t, pic.IsDelivered)
	require.Equal(t, "pic", *pic.Text)
}

func TestHistory_NewestFirstAndParticipantOnly(t *testing.T) {
	svc, _, _ := newTestService(t, false, 1, 2, 3)
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := svc.Send(ctx, actorN(1), chat.ID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	msgs, err := svc.History(ctx, actorN(2), chat.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.True(t, msgs[0].CreatedAt.After(msgs[1].CreatedAt))
	require.True(t, msgs[1].CreatedAt.After(msgs[2].CreatedAt))

	_, err = svc.History(ctx, actorN(3), chat.ID, nil, 0)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSendMedia_UnknownContentTypeSniffsOrNull(t *testing.T) {
	svc, _, _ := newTestService(t, false, 1, 2)
	ctx := context.Background()

	chat, err := svc.CreateDirect(ctx, actorN(1), 2)
	require.NoError(t, err)

	// Plain bytes with no media content type: kind stays null.
	msg, err := svc.SendMedia(ctx, actorN(1), chat.ID, Upload{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("just text"),
	})
	require.NoError(t, err)
	require.Nil(t, msg.MediaKind)
	require.NotNil(t, msg.MediaURL)
	require.True(t, msg.IsDelivered)
}

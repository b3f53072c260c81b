package chat

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"noteshare-chat/internal/apperr"
	"noteshare-chat/internal/profile"
)

// fakeStore is an in-memory Store that enforces the same constraints as
// the schema (dm_key uniqueness, receipt primary key).
type fakeStore struct {
	mu       sync.Mutex
	nextChat int64
	nextMsg  int64
	clock    time.Time

	chats map[int64]*Chat
	byKey map[string]int64
	parts map[int64]map[int64]*Participant
	msgs  map[int64]*Message
	reads map[int64]map[int64]time.Time
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		chats: make(map[int64]*Chat),
		byKey: make(map[string]int64),
		parts: make(map[int64]map[int64]*Participant),
		msgs:  make(map[int64]*Message),
		reads: make(map[int64]map[int64]time.Time),
	}
}

// tick returns a strictly monotonic timestamp. Callers hold mu.
func (s *fakeStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *fakeStore) ChatByID(ctx context.Context, id int64) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("chat %d: %w", id, apperr.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) ChatByDirectKey(ctx context.Context, key string) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", key, apperr.ErrNotFound)
	}
	cp := *s.chats[id]
	return &cp, nil
}

func (s *fakeStore) CreateDirectChat(ctx context.Context, key string, a, b int64) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[key]; exists {
		return nil, fmt.Errorf("dm_key %s: %w", key, apperr.ErrConflict)
	}

	s.nextChat++
	c := &Chat{ID: s.nextChat, DMKey: &key, CreatedAt: s.tick()}
	s.chats[c.ID] = c
	s.byKey[key] = c.ID
	s.parts[c.ID] = map[int64]*Participant{
		a: {ChatID: c.ID, ProfileID: a, JoinedAt: c.CreatedAt},
		b: {ChatID: c.ID, ProfileID: b, JoinedAt: c.CreatedAt},
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) CreateGroupChat(ctx context.Context, title *string, memberIDs []int64) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextChat++
	c := &Chat{ID: s.nextChat, IsGroup: true, Title: title, CreatedAt: s.tick()}
	s.chats[c.ID] = c
	s.parts[c.ID] = make(map[int64]*Participant)
	for _, pid := range memberIDs {
		s.parts[c.ID][pid] = &Participant{ChatID: c.ID, ProfileID: pid, JoinedAt: c.CreatedAt}
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) IsParticipant(ctx context.Context, chatID, profileID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.parts[chatID][profileID]
	return ok, nil
}

func (s *fakeStore) Participants(ctx context.Context, chatID int64) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Participant
	for _, p := range s.parts[chatID] {
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) AdvanceLastRead(ctx context.Context, chatID, profileID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parts[chatID][profileID]
	if !ok {
		return nil
	}
	if p.LastReadAt == nil || p.LastReadAt.Before(at) {
		cp := at
		p.LastReadAt = &cp
	}
	return nil
}

func (s *fakeStore) InsertMessage(ctx context.Context, m *Message) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsg++
	m.ID = s.nextMsg
	m.CreatedAt = s.tick()
	cp := *m
	s.msgs[m.ID] = &cp
	return m, nil
}

func (s *fakeStore) MessageByID(ctx context.Context, id int64) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", id, apperr.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) MessageInChat(ctx context.Context, chatID, messageID int64) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[messageID]
	if !ok || m.ChatID != chatID {
		return nil, fmt.Errorf("message %d in chat %d: %w", messageID, chatID, apperr.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) UpdateMessageText(ctx context.Context, id int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.msgs[id]; ok {
		cp := text
		m.Text = &cp
	}
	return nil
}

func (s *fakeStore) SoftDeleteMessage(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.msgs[id]; ok {
		placeholder := DeletedPlaceholder
		m.Text = &placeholder
		m.MediaURL = nil
		m.MediaKind = nil
		m.IsDeleted = true
	}
	return nil
}

func (s *fakeStore) ListMessages(ctx context.Context, chatID int64, beforeID *int64, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	// IDs are assigned in insertion order, so walking down is newest-first.
	for id := s.nextMsg; id > 0 && len(out) < limit; id-- {
		m, ok := s.msgs[id]
		if !ok || m.ChatID != chatID {
			continue
		}
		if beforeID != nil && id >= *beforeID {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *fakeStore) InsertReadReceipt(ctx context.Context, messageID, readerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reads[messageID] == nil {
		s.reads[messageID] = make(map[int64]time.Time)
	}
	if _, exists := s.reads[messageID][readerID]; exists {
		return false, nil
	}
	s.reads[messageID][readerID] = s.tick()
	return true, nil
}

func (s *fakeStore) ReadReceipts(ctx context.Context, messageID int64) ([]ReadReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ReadReceipt
	for reader, at := range s.reads[messageID] {
		out = append(out, ReadReceipt{MessageID: messageID, ReaderID: reader, ReadAt: at})
	}
	return out, nil
}

func (s *fakeStore) chatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

func (s *fakeStore) participant(chatID, profileID int64) *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parts[chatID][profileID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// fakeProfiles maps user ids straight onto profile ids.
type fakeProfiles struct {
	mu    sync.Mutex
	known map[int64]*profile.Profile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{known: make(map[int64]*profile.Profile)}
}

func (f *fakeProfiles) Ensure(ctx context.Context, userID int64, displayName string) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.known[userID]; ok {
		return p, nil
	}
	p := &profile.Profile{ID: userID, UserID: userID, DisplayName: displayName}
	f.known[userID] = p
	return p, nil
}

func (f *fakeProfiles) ByID(ctx context.Context, id int64) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.known[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("profile %d: %w", id, apperr.ErrNotFound)
}

func (f *fakeProfiles) ByIDs(ctx context.Context, ids []int64) ([]profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []profile.Profile
	for _, id := range ids {
		p, ok := f.known[id]
		if !ok {
			return nil, fmt.Errorf("profile %d: %w", id, apperr.ErrNotFound)
		}
		out = append(out, *p)
	}
	return out, nil
}

// recordingNotifier captures fan-out calls without a hub.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	chatID  int64
	event   string
	payload any
}

func (n *recordingNotifier) NotifyChat(chatID int64, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{chatID: chatID, event: event, payload: payload})
}

func (n *recordingNotifier) byEvent(event string) []recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedEvent
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeUploader never touches disk.
type fakeUploader struct{}

func (fakeUploader) Upload(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	return "/media/" + filename, nil
}

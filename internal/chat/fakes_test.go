package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parallaxhq/parallax/internal/conversation"
	"github.com/parallaxhq/parallax/internal/llm"
)

// fakeStore is an in-memory Store with injectable failures.
type fakeStore struct {
	mu    sync.Mutex
	convs map[uuid.UUID]*conversation.Conversation
	msgs  map[uuid.UUID][]conversation.Message

	failUserAppend      error
	failAssistantAppend error
	failMessages        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs: make(map[uuid.UUID]*conversation.Conversation),
		msgs:  make(map[uuid.UUID][]conversation.Message),
	}
}

func (s *fakeStore) addConversation(userID uuid.UUID, mode string) *conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &conversation.Conversation{
		ID:     uuid.New(),
		UserID: userID,
		Title:  conversation.DefaultTitle,
		Model:  "haiku",
		Mode:   mode,
	}
	s.convs[c.ID] = c
	return c
}

func (s *fakeStore) GetOwned(_ context.Context, id, userID uuid.UUID) (*conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	if c.UserID != userID {
		return nil, conversation.ErrAccessDenied
	}
	clone := *c
	return &clone, nil
}

func (s *fakeStore) Messages(_ context.Context, id uuid.UUID, limit int32) ([]conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMessages != nil {
		return nil, s.failMessages
	}
	msgs := s.msgs[id]
	if limit > 0 && int32(len(msgs)) > limit {
		msgs = msgs[:limit]
	}
	out := make([]conversation.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *fakeStore) AppendUserMessage(_ context.Context, id uuid.UUID, content, mode, proposedTitle string) (*conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUserAppend != nil {
		return nil, s.failUserAppend
	}
	c, ok := s.convs[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	m := s.appendLocked(id, conversation.RoleUser, content, mode, nil, nil)
	if proposedTitle != "" && m.SequenceNumber == 1 && c.Title == conversation.DefaultTitle {
		c.Title = proposedTitle
	}
	return m, nil
}

func (s *fakeStore) AppendAssistantMessage(_ context.Context, id uuid.UUID, content, mode string, inputTokens, outputTokens *int) (*conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAssistantAppend != nil {
		return nil, s.failAssistantAppend
	}
	if _, ok := s.convs[id]; !ok {
		return nil, conversation.ErrNotFound
	}
	return s.appendLocked(id, conversation.RoleAssistant, content, mode, inputTokens, outputTokens), nil
}

func (s *fakeStore) appendLocked(id uuid.UUID, role, content, mode string, in, out *int) *conversation.Message {
	m := conversation.Message{
		ID:             uuid.New(),
		ConversationID: id,
		SequenceNumber: int64(len(s.msgs[id]) + 1),
		Role:           role,
		Content:        content,
		Mode:           mode,
		InputTokens:    in,
		OutputTokens:   out,
		CreatedAt:      time.Now(),
	}
	s.msgs[id] = append(s.msgs[id], m)
	return &m
}

func (s *fakeStore) history(id uuid.UUID) []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conversation.Message, len(s.msgs[id]))
	copy(out, s.msgs[id])
	return out
}

func (s *fakeStore) title(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[id].Title
}

// scriptedStream replays chunks, then ends with finalErr (io.EOF for a
// clean stream). With hang set it blocks on the call context after the
// chunks, imitating a stalled provider.
type scriptedStream struct {
	ctx      context.Context
	chunks   []string
	idx      int
	finalErr error
	usage    llm.Usage
	hasUsage bool
	hang     bool

	// gate, when non-nil, is received from before each chunk so tests
	// can control relay pacing.
	gate chan struct{}

	mu     sync.Mutex
	closed bool
}

func (s *scriptedStream) Recv() (string, error) {
	if s.idx < len(s.chunks) {
		if s.gate != nil {
			select {
			case <-s.gate:
			case <-s.ctx.Done():
				return "", s.ctx.Err()
			}
		}
		chunk := s.chunks[s.idx]
		s.idx++
		return chunk, nil
	}
	if s.hang {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	return "", s.finalErr
}

func (s *scriptedStream) Usage() (llm.Usage, bool) {
	return s.usage, s.hasUsage
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedStream) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeStreamer hands out one scriptedStream per Stream call.
type fakeStreamer struct {
	mu      sync.Mutex
	openErr error
	next    func() *scriptedStream
	opened  []*scriptedStream
	lastReq llm.Request
}

func (f *fakeStreamer) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := f.next()
	s.ctx = ctx
	f.opened = append(f.opened, s)
	return s, nil
}

func (f *fakeStreamer) request() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// fakeUsage records Record calls.
type fakeUsage struct {
	mu      sync.Mutex
	records []llm.Usage
}

func (f *fakeUsage) Record(_ context.Context, _, _ uuid.UUID, _ string, usage llm.Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, usage)
	return nil
}

func (f *fakeUsage) recorded() []llm.Usage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Usage, len(f.records))
	copy(out, f.records)
	return out
}

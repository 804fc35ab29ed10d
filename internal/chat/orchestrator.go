// Package chat implements the streaming orchestration path: the single
// authority that turns a client-submitted message into a persisted
// exchange while relaying live output.
//
// A call runs in two phases. Begin validates inputs, acquires the
// per-conversation lock, commits the user message, and loads history;
// all of its errors are synchronous and reach the client as a plain
// HTTP status. Call.Stream then opens the upstream stream, relays
// increments, and finalizes persistence; its errors arrive after output
// has started flowing and are delivered as terminal stream events.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/parallaxhq/parallax/internal/conversation"
	"github.com/parallaxhq/parallax/internal/llm"
	"github.com/parallaxhq/parallax/internal/log"
	"github.com/parallaxhq/parallax/internal/mode"
)

// Store is the conversation persistence the orchestrator depends on.
// Implemented by *conversation.Store; narrowed here so tests can fake it.
type Store interface {
	GetOwned(ctx context.Context, id, userID uuid.UUID) (*conversation.Conversation, error)
	Messages(ctx context.Context, conversationID uuid.UUID, limit int32) ([]conversation.Message, error)
	AppendUserMessage(ctx context.Context, conversationID uuid.UUID, content, mode, proposedTitle string) (*conversation.Message, error)
	AppendAssistantMessage(ctx context.Context, conversationID uuid.UUID, content, mode string, inputTokens, outputTokens *int) (*conversation.Message, error)
}

// UsageRecorder records per-call token accounting. Recording is best
// effort; a failure never fails the call.
type UsageRecorder interface {
	Record(ctx context.Context, userID, conversationID uuid.UUID, model string, usage llm.Usage) error
}

// Config holds orchestrator tuning.
type Config struct {
	// MaxTokens caps generated output per call.
	MaxTokens int

	// HistoryLimit caps how many messages are replayed upstream.
	HistoryLimit int32

	// StreamTimeout bounds one upstream streaming call end to end. A
	// hung provider would otherwise block every later turn in the
	// conversation through the per-conversation lock.
	StreamTimeout time.Duration
}

// Orchestrator coordinates validation, locking, persistence, and the
// upstream relay for streaming chat calls. Safe for concurrent use;
// calls against the same conversation are serialized, calls against
// different conversations are independent.
type Orchestrator struct {
	store    Store
	streamer llm.Streamer
	usage    UsageRecorder
	locks    *conversationLocks
	logger   log.Logger
	cfg      Config
}

// NewOrchestrator builds an orchestrator. usage may be nil to disable
// usage recording.
func NewOrchestrator(store Store, streamer llm.Streamer, usage UsageRecorder, logger log.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    store,
		streamer: streamer,
		usage:    usage,
		locks:    newConversationLocks(),
		logger:   logger,
		cfg:      cfg,
	}
}

// Request is one client-submitted chat turn. The mode is read from the
// conversation record, not the request.
type Request struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Content        string
	Model          llm.ModelID
}

// Call is one validated, locked, in-flight orchestration call produced
// by Begin. Exactly one of Stream or Abort must be invoked to release
// the conversation lock.
type Call struct {
	orc          *Orchestrator
	conv         *conversation.Conversation
	userID       uuid.UUID
	upstream     string
	systemPrompt string
	history      []llm.Message
	release      func()
}

// Result is the outcome of a successfully finalized call.
type Result struct {
	Reply    *conversation.Message
	Usage    llm.Usage
	HasUsage bool
}

// Begin runs the synchronous half of a call: model validation,
// ownership check, mode resolution, lock acquisition, the transactional
// user-message commit, and the history load.
//
// Validation strictly precedes persistence: an unknown model or mode
// appends nothing. The user-message commit strictly precedes streaming:
// once Begin returns, the user's turn is durable even if the stream
// later fails.
func (o *Orchestrator) Begin(ctx context.Context, req Request) (*Call, error) {
	upstream, err := llm.ResolveModel(req.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModel, req.Model)
	}

	conv, err := o.store.GetOwned(ctx, req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := mode.SystemPrompt(mode.Mode(conv.Mode))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, conv.Mode)
	}

	release, err := o.locks.acquire(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("acquiring conversation lock: %w", err)
	}

	call, err := o.beginLocked(ctx, req, conv, upstream, systemPrompt, release)
	if err != nil {
		release()
		return nil, err
	}
	return call, nil
}

func (o *Orchestrator) beginLocked(ctx context.Context, req Request, conv *conversation.Conversation, upstream, systemPrompt string, release func()) (*Call, error) {
	if _, err := o.store.AppendUserMessage(ctx, conv.ID, req.Content, conv.Mode, proposeTitle(req.Content)); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	msgs, err := o.store.Messages(ctx, conv.ID, o.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	return &Call{
		orc:          o,
		conv:         conv,
		userID:       req.UserID,
		upstream:     upstream,
		systemPrompt: systemPrompt,
		history:      history,
		release:      release,
	}, nil
}

// Abort releases the conversation lock without streaming. For callers
// that fail between Begin and Stream (e.g. the transport cannot switch
// to event-stream mode). The committed user message remains.
func (c *Call) Abort() {
	c.release()
}

// Stream runs the relay loop: it opens the upstream call, forwards each
// text increment through onChunk as it arrives, and finalizes
// persistence. onChunk must be fast and must not block on storage; a
// non-nil error from it is treated as a transport failure and stops the
// relay.
//
// On normal completion exactly one assistant message is persisted,
// containing the full accumulated text. On any mid-stream failure,
// cancellation included, the partial accumulator is discarded and
// nothing is persisted; the conversation is left with the user's turn
// recorded and no reply, which the client may retry by resubmitting.
func (c *Call) Stream(ctx context.Context, onChunk func(delta string) error) (*Result, error) {
	defer c.release()

	streamCtx := ctx
	var cancel context.CancelFunc
	if c.orc.cfg.StreamTimeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, c.orc.cfg.StreamTimeout)
		defer cancel()
	}

	stream, err := c.orc.streamer.Stream(streamCtx, llm.Request{
		Model:        c.upstream,
		SystemPrompt: c.systemPrompt,
		History:      c.history,
		MaxTokens:    c.orc.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			c.orc.logger.Warn("closing upstream stream", "error", err)
		}
	}()

	var accumulated []byte
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, c.midStreamError(streamCtx, err)
		}

		// Checked before forwarding so a gone client stops the relay
		// within one loop iteration.
		select {
		case <-streamCtx.Done():
			return nil, c.midStreamError(streamCtx, streamCtx.Err())
		default:
		}

		if err := onChunk(delta); err != nil {
			return nil, fmt.Errorf("relaying to client: %w", err)
		}
		accumulated = append(accumulated, delta...)
	}

	return c.finalize(ctx, string(accumulated), stream)
}

// midStreamError classifies a relay-loop failure. Client cancellation
// keeps its context error so the transport can tell it apart from a
// provider failure; everything else, the stream timeout included, is an
// upstream error.
func (c *Call) midStreamError(streamCtx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && streamCtx.Err() != nil {
		return fmt.Errorf("%w: stream timed out after %s", ErrUpstream, c.orc.cfg.StreamTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("client disconnected: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

// finalize persists the assistant reply exactly once and records usage.
// The write uses a context detached from the client's so a disconnect
// arriving between stream completion and commit cannot tear the write.
func (c *Call) finalize(ctx context.Context, content string, stream llm.Stream) (*Result, error) {
	usage, hasUsage := stream.Usage()

	var inputTokens, outputTokens *int
	if hasUsage {
		inputTokens, outputTokens = &usage.InputTokens, &usage.OutputTokens
	}

	writeCtx := context.WithoutCancel(ctx)
	reply, err := c.orc.store.AppendAssistantMessage(writeCtx, c.conv.ID, content, c.conv.Mode, inputTokens, outputTokens)
	if err != nil {
		c.orc.logger.Error("assistant reply streamed but not persisted",
			"conversation_id", c.conv.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrNotSaved, err)
	}

	if c.orc.usage != nil && hasUsage {
		if err := c.orc.usage.Record(writeCtx, c.userID, c.conv.ID, c.upstream, usage); err != nil {
			c.orc.logger.Warn("recording usage failed",
				"conversation_id", c.conv.ID, "error", err)
		}
	}

	c.orc.logger.Info("stream finalized",
		"conversation_id", c.conv.ID,
		"reply_length", len(content),
		"has_usage", hasUsage)

	return &Result{Reply: reply, Usage: usage, HasUsage: hasUsage}, nil
}

//go:build integration
// +build integration

package conversation_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/parallaxhq/parallax/internal/conversation"
	"github.com/parallaxhq/parallax/internal/log"
	"github.com/parallaxhq/parallax/internal/testutil"
	"github.com/parallaxhq/parallax/internal/user"
)

type fixture struct {
	db     *testutil.TestDB
	users  *user.Store
	convs  *conversation.Store
	userID uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	logger := log.NewNop()

	users := user.NewStore(db.Pool, logger)
	u, err := users.Create(context.Background(), "owner@example.com", "hash")
	if err != nil {
		t.Fatalf("creating test user: %v", err)
	}

	return &fixture{
		db:     db,
		users:  users,
		convs:  conversation.NewStore(db.Pool, logger),
		userID: u.ID,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.convs.Create(ctx, f.userID, "sonnet", "balanced")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Title != conversation.DefaultTitle {
		t.Errorf("title = %q, want default", c.Title)
	}

	got, err := f.convs.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != c.ID || got.UserID != f.userID || got.Mode != "balanced" {
		t.Errorf("Get returned %+v", got)
	}

	if _, err := f.convs.Get(ctx, uuid.New()); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Get(unknown) = %v, want ErrNotFound", err)
	}
}

func TestStore_GetOwned_EnforcesOwnership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	other, err := f.users.Create(ctx, "other@example.com", "hash")
	if err != nil {
		t.Fatalf("creating second user: %v", err)
	}

	c, err := f.convs.Create(ctx, f.userID, "haiku", "balanced")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.convs.GetOwned(ctx, c.ID, f.userID); err != nil {
		t.Errorf("GetOwned(owner) = %v", err)
	}
	if _, err := f.convs.GetOwned(ctx, c.ID, other.ID); !errors.Is(err, conversation.ErrAccessDenied) {
		t.Errorf("GetOwned(non-owner) = %v, want ErrAccessDenied", err)
	}
}

func TestStore_AppendAssignsSequenceAndTitle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.convs.Create(ctx, f.userID, "haiku", "balanced")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	m1, err := f.convs.AppendUserMessage(ctx, c.ID, "first question", "balanced", "first question")
	if err != nil {
		t.Fatalf("AppendUserMessage: %v", err)
	}
	if m1.SequenceNumber != 1 {
		t.Errorf("first sequence = %d, want 1", m1.SequenceNumber)
	}

	in, out := 42, 128
	m2, err := f.convs.AppendAssistantMessage(ctx, c.ID, "an answer", "balanced", &in, &out)
	if err != nil {
		t.Fatalf("AppendAssistantMessage: %v", err)
	}
	if m2.SequenceNumber != 2 {
		t.Errorf("second sequence = %d, want 2", m2.SequenceNumber)
	}
	if m2.InputTokens == nil || *m2.InputTokens != 42 {
		t.Errorf("input tokens = %v, want 42", m2.InputTokens)
	}

	// Title set by first user message only.
	got, err := f.convs.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "first question" {
		t.Errorf("title = %q, want %q", got.Title, "first question")
	}

	// A later message must not alter the title.
	if _, err := f.convs.AppendUserMessage(ctx, c.ID, "second question", "balanced", "second question"); err != nil {
		t.Fatalf("second AppendUserMessage: %v", err)
	}
	got, err = f.convs.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "first question" {
		t.Errorf("title changed to %q after later message", got.Title)
	}
}

func TestStore_TitleNotOverwrittenWhenRenamed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.convs.Create(ctx, f.userID, "haiku", "balanced")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.convs.Rename(ctx, c.ID, "My Topic"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := f.convs.AppendUserMessage(ctx, c.ID, "hello", "balanced", "hello"); err != nil {
		t.Fatalf("AppendUserMessage: %v", err)
	}

	got, err := f.convs.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "My Topic" {
		t.Errorf("title = %q, want explicit rename preserved", got.Title)
	}
}

func TestStore_MessagesOrderedOldestFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.convs.Create(ctx, f.userID, "haiku", "balanced")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	contents := []string{"one", "two", "three"}
	for _, content := range contents {
		if _, err := f.convs.AppendUserMessage(ctx, c.ID, content, "balanced", ""); err != nil {
			t.Fatalf("AppendUserMessage(%q): %v", content, err)
		}
	}

	msgs, err := f.convs.Messages(ctx, c.ID, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != contents[i] {
			t.Errorf("message %d = %q, want %q", i, m.Content, contents[i])
		}
		if m.SequenceNumber != int64(i+1) {
			t.Errorf("message %d sequence = %d, want %d", i, m.SequenceNumber, i+1)
		}
	}

	limited, err := f.convs.Messages(ctx, c.ID, 2)
	if err != nil {
		t.Fatalf("Messages(limit): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited query returned %d messages, want 2", len(limited))
	}
}

func TestStore_ConcurrentAppendsKeepSequenceGapless(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.convs.Create(ctx, f.userID, "haiku", "balanced")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.convs.AppendUserMessage(ctx, c.ID, "concurrent", "balanced", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent append: %v", err)
		}
	}

	msgs, err := f.convs.Messages(ctx, c.ID, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != n {
		t.Fatalf("got %d messages, want %d", len(msgs), n)
	}
	for i, m := range msgs {
		if m.SequenceNumber != int64(i+1) {
			t.Errorf("sequence %d at position %d", m.SequenceNumber, i)
		}
	}
}

func TestStore_DeleteCascadesToMessages(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.convs.Create(ctx, f.userID, "haiku", "balanced")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.convs.AppendUserMessage(ctx, c.ID, "hello", "balanced", ""); err != nil {
		t.Fatalf("AppendUserMessage: %v", err)
	}

	if err := f.convs.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.convs.Get(ctx, c.ID); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	var count int
	err = f.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = $1", c.ID).Scan(&count)
	if err != nil {
		t.Fatalf("counting messages: %v", err)
	}
	if count != 0 {
		t.Errorf("%d orphaned messages remain after delete", count)
	}
}

func TestStore_ListByOwner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	other, err := f.users.Create(ctx, "other@example.com", "hash")
	if err != nil {
		t.Fatalf("creating second user: %v", err)
	}

	first, err := f.convs.Create(ctx, f.userID, "haiku", "balanced")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := f.convs.Create(ctx, f.userID, "sonnet", "plan")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.convs.Create(ctx, other.ID, "haiku", "balanced"); err != nil {
		t.Fatalf("Create for other user: %v", err)
	}

	// Touch the first conversation so it sorts to the front.
	if _, err := f.convs.AppendUserMessage(ctx, first.ID, "bump", "balanced", ""); err != nil {
		t.Fatalf("AppendUserMessage: %v", err)
	}

	list, err := f.convs.ListByOwner(ctx, f.userID)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d conversations, want 2", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Errorf("list order = [%s, %s], want most recently updated first", list[0].ID, list[1].ID)
	}
}

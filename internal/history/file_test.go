package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/devKanishk15/postgres-ai/pkg/models"
)

func newTestStore(t *testing.T, maxRetained int) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), maxRetained)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func conversation(n int) []models.ChatMessage {
	msgs := []models.ChatMessage{{Role: models.RoleSystem, Content: "system prompt"}}
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs = append(msgs, models.ChatMessage{Role: role, Content: fmt.Sprintf("message %d", i)})
	}
	return msgs
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 20)

	msgs := conversation(4)
	s.Save(ctx, "conv-1", msgs)

	got := s.Get(ctx, "conv-1")
	if len(got) != len(msgs) {
		t.Fatalf("got %d messages, want %d", len(got), len(msgs))
	}
	if got[0].Role != models.RoleSystem || got[len(got)-1].Content != "message 3" {
		t.Errorf("round trip mismatch: first=%+v last=%+v", got[0], got[len(got)-1])
	}
}

func TestGet_Unknown(t *testing.T) {
	s := newTestStore(t, 20)
	if got := s.Get(context.Background(), "missing"); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}
}

func TestSave_TrimsKeepingSystemMessage(t *testing.T) {
	ctx := context.Background()
	const max = 6
	s := newTestStore(t, max)

	s.Save(ctx, "conv-1", conversation(max+5))

	got := s.Get(ctx, "conv-1")
	if len(got) != max+1 {
		t.Fatalf("got %d messages after trim, want %d", len(got), max+1)
	}
	if got[0].Role != models.RoleSystem {
		t.Fatalf("first message role = %q, want system", got[0].Role)
	}
	// The newest messages survive.
	if got[len(got)-1].Content != fmt.Sprintf("message %d", max+4) {
		t.Errorf("last message = %q, want the newest", got[len(got)-1].Content)
	}
}

func TestSave_AtLimitNotTrimmed(t *testing.T) {
	ctx := context.Background()
	const max = 6
	s := newTestStore(t, max)

	s.Save(ctx, "conv-1", conversation(max))
	if got := s.Get(ctx, "conv-1"); len(got) != max+1 {
		t.Errorf("got %d messages, want %d untouched", len(got), max+1)
	}
}

func TestPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := NewFileStore(dir, 20)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s1.Save(ctx, "conv-1", conversation(2))

	s2, err := NewFileStore(dir, 20)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if got := s2.Get(ctx, "conv-1"); len(got) != 3 {
		t.Errorf("second instance got %d messages, want 3", len(got))
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 20)
	s.Save(ctx, "conv-1", conversation(2))
	s.Clear(ctx, "conv-1")
	if got := s.Get(ctx, "conv-1"); got != nil {
		t.Errorf("Get after Clear = %v, want nil", got)
	}
}

func TestPathSanitized(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir, 20)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s.Save(ctx, "../escape", conversation(1))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			return
		}
	}
	t.Error("conversation file not written inside the data directory")
}

func TestTrim_SystemMessageAtTailNotDuplicated(t *testing.T) {
	system := models.ChatMessage{Role: models.RoleSystem, Content: "system prompt"}
	msgs := []models.ChatMessage{
		system,
		{Role: models.RoleUser, Content: "a"},
		system,
		{Role: models.RoleAssistant, Content: "b"},
		{Role: models.RoleUser, Content: "c"},
	}
	got := trim(msgs, 3)
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3 with no re-prepend", len(got))
	}
	if got[0].Role != models.RoleSystem {
		t.Fatalf("first role = %q, want system", got[0].Role)
	}
	if got[1].Role == models.RoleSystem {
		t.Error("system message duplicated by trim")
	}
}

func TestTrim_NoSystemMessage(t *testing.T) {
	msgs := []models.ChatMessage{
		{Role: models.RoleUser, Content: "a"},
		{Role: models.RoleAssistant, Content: "b"},
		{Role: models.RoleUser, Content: "c"},
		{Role: models.RoleAssistant, Content: "d"},
	}
	got := trim(msgs, 2)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Content != "c" || got[1].Content != "d" {
		t.Errorf("kept %q/%q, want the newest two", got[0].Content, got[1].Content)
	}
}

package llm

import (
	"errors"
	"testing"
)

func TestResolveModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   ModelID
		want string
	}{
		{Haiku, "claude-3-5-haiku-20241022"},
		{Sonnet, "claude-3-5-sonnet-20241022"},
		{Opus, "claude-opus-4-20250514"},
	}
	for _, tt := range tests {
		got, err := ResolveModel(tt.id)
		if err != nil {
			t.Errorf("ResolveModel(%q) = %v", tt.id, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveModel(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestResolveModel_UnknownRejected(t *testing.T) {
	t.Parallel()

	for _, id := range []ModelID{"", "gpt-4", "HAIKU", "sonnet "} {
		if _, err := ResolveModel(id); !errors.Is(err, ErrUnknownModel) {
			t.Errorf("ResolveModel(%q) = %v, want ErrUnknownModel", id, err)
		}
	}
}

func TestModels(t *testing.T) {
	t.Parallel()

	infos := Models()
	if len(infos) != 3 {
		t.Fatalf("Models() returned %d entries, want 3", len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i-1].ID >= infos[i].ID {
			t.Errorf("Models() not sorted: %q before %q", infos[i-1].ID, infos[i].ID)
		}
	}
	for _, info := range infos {
		if !ValidModel(info.ID) {
			t.Errorf("listed model %q not valid", info.ID)
		}
	}
}

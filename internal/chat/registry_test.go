package chat

import (
	"path/filepath"
	"testing"

	"github.com/gustavo/advisor-cli/internal/model"
	"github.com/gustavo/advisor-cli/internal/state"
	"github.com/gustavo/advisor-cli/internal/wallet"
)

var _ wallet.Invalidator = (*Registry)(nil)

func openTestStore(t *testing.T) *state.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := state.Open(filepath.Join(dir, "state.db"), filepath.Join(dir, "state.lock"))
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSelectEnforcesSingleFocus(t *testing.T) {
	r := NewRegistry(openTestStore(t))

	if _, err := r.Select("quant"); err != nil {
		t.Fatalf("select quant: %v", err)
	}
	view, err := r.Select("meme")
	if err != nil {
		t.Fatalf("select meme: %v", err)
	}
	if !view.Visible {
		t.Fatalf("selected window not visible")
	}

	quant, err := r.Window("quant")
	if err != nil {
		t.Fatalf("window quant: %v", err)
	}
	if quant.Visible {
		t.Fatalf("previously selected window still visible")
	}
}

func TestCloseKeepsTranscript(t *testing.T) {
	r := NewRegistry(openTestStore(t))
	if _, err := r.Select("quant"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := r.Append("quant", "user", "should I buy?"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := r.Close("quant"); err != nil {
		t.Fatalf("close: %v", err)
	}

	view, err := r.Window("quant")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if view.Visible {
		t.Fatalf("closed window still visible")
	}
	if len(view.Messages) != 1 || view.Messages[0].Content != "should I buy?" {
		t.Fatalf("transcript lost on close: %+v", view.Messages)
	}
}

func TestSetMessagesReplacesTranscript(t *testing.T) {
	r := NewRegistry(openTestStore(t))
	if err := r.Append("quant", "user", "old"); err != nil {
		t.Fatalf("append: %v", err)
	}
	replacement := []model.ChatMessage{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}
	if err := r.SetMessages("quant", replacement); err != nil {
		t.Fatalf("set messages: %v", err)
	}

	view, err := r.Window("quant")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(view.Messages) != 2 || view.Messages[0].Content != "hello" {
		t.Fatalf("transcript not replaced: %+v", view.Messages)
	}
}

func TestTranscriptsSurviveRestart(t *testing.T) {
	store := openTestStore(t)
	first := NewRegistry(store)
	if _, err := first.Select("meme"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := first.Append("meme", "user", "wen moon"); err != nil {
		t.Fatalf("append: %v", err)
	}

	second := NewRegistry(store)
	view, err := second.Window("meme")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(view.Messages) != 1 || view.Messages[0].Content != "wen moon" {
		t.Fatalf("transcript not persisted: %+v", view.Messages)
	}
}

func TestAccountSwitchDiscardsPersistedTranscripts(t *testing.T) {
	store := openTestStore(t)
	first := NewRegistry(store)
	if _, err := first.Select("steady"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := first.Append("steady", "user", "how should I allocate?"); err != nil {
		t.Fatalf("append: %v", err)
	}

	// The next invocation connects with a different account; the session
	// manager notifies registered invalidators.
	second := NewRegistry(store)
	second.InvalidateAccount("0xAAA")

	view, err := second.Window("steady")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(view.Messages) != 0 {
		t.Fatalf("prior account's transcript readable after account switch: %+v", view.Messages)
	}

	fresh := NewRegistry(store)
	view, err = fresh.Window("steady")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(view.Messages) != 0 {
		t.Fatalf("persisted transcript survived account switch")
	}
}

func TestResetDiscardsEverything(t *testing.T) {
	store := openTestStore(t)
	r := NewRegistry(store)
	if err := r.Append("quant", "user", "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := r.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	windows, err := r.Windows()
	if err != nil {
		t.Fatalf("windows: %v", err)
	}
	if len(windows) != 0 {
		t.Fatalf("windows survived reset: %+v", windows)
	}

	fresh := NewRegistry(store)
	view, err := fresh.Window("quant")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(view.Messages) != 0 {
		t.Fatalf("persisted transcript survived reset")
	}
}

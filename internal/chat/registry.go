package chat

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/model"
	"github.com/gustavo/advisor-cli/internal/state"
)

const keyPrefix = "chat|"

type window struct {
	FeatureKey string              `json:"feature_key"`
	Visible    bool                `json:"visible"`
	Messages   []model.ChatMessage `json:"messages"`
}

// Registry holds per-feature chat windows under a single-focus policy: at
// most one window is visible at a time, and closing a window hides it
// without discarding its transcript. Entitlement is the caller's problem;
// the registry knows nothing about on-chain state.
type Registry struct {
	mu      sync.Mutex
	store   *state.Store
	windows map[string]*window
	loaded  bool
}

func NewRegistry(store *state.Store) *Registry {
	return &Registry{store: store, windows: make(map[string]*window)}
}

func (r *Registry) ensureLoaded() error {
	if r.loaded {
		return nil
	}
	r.loaded = true
	if r.store == nil {
		return nil
	}
	entries, err := r.store.ListPrefix(keyPrefix)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "load chat transcripts", err)
	}
	for key, raw := range entries {
		var w window
		if err := json.Unmarshal(raw, &w); err != nil {
			// A corrupt transcript degrades to an empty window.
			w = window{FeatureKey: strings.TrimPrefix(key, keyPrefix)}
		}
		r.windows[w.FeatureKey] = &w
	}
	return nil
}

func (r *Registry) persist(w *window) error {
	if r.store == nil {
		return nil
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode chat transcript", err)
	}
	if err := r.store.Put(keyPrefix+w.FeatureKey, raw); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "persist chat transcript", err)
	}
	return nil
}

// Select makes featureKey's window visible and hides all others, creating
// the window lazily on first selection.
func (r *Registry) Select(featureKey string) (model.ChatWindowView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return model.ChatWindowView{}, err
	}

	for key, w := range r.windows {
		if key != featureKey && w.Visible {
			w.Visible = false
			if err := r.persist(w); err != nil {
				return model.ChatWindowView{}, err
			}
		}
	}
	w, ok := r.windows[featureKey]
	if !ok {
		w = &window{FeatureKey: featureKey}
		r.windows[featureKey] = w
	}
	w.Visible = true
	if err := r.persist(w); err != nil {
		return model.ChatWindowView{}, err
	}
	return viewOf(w), nil
}

// Close hides the window but keeps its transcript. Closing a window that
// was never opened is a no-op.
func (r *Registry) Close(featureKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return err
	}
	w, ok := r.windows[featureKey]
	if !ok || !w.Visible {
		return nil
	}
	w.Visible = false
	return r.persist(w)
}

// SetMessages replaces the stored transcript for featureKey.
func (r *Registry) SetMessages(featureKey string, messages []model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return err
	}
	w, ok := r.windows[featureKey]
	if !ok {
		w = &window{FeatureKey: featureKey}
		r.windows[featureKey] = w
	}
	w.Messages = append([]model.ChatMessage(nil), messages...)
	return r.persist(w)
}

// Append adds one message to featureKey's transcript.
func (r *Registry) Append(featureKey, role, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return err
	}
	w, ok := r.windows[featureKey]
	if !ok {
		w = &window{FeatureKey: featureKey}
		r.windows[featureKey] = w
	}
	w.Messages = append(w.Messages, model.ChatMessage{Role: role, Content: content})
	return r.persist(w)
}

// Window returns the view for one feature key.
func (r *Registry) Window(featureKey string) (model.ChatWindowView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return model.ChatWindowView{}, err
	}
	w, ok := r.windows[featureKey]
	if !ok {
		return model.ChatWindowView{FeatureKey: featureKey}, nil
	}
	return viewOf(w), nil
}

// Windows lists every window ordered by feature key.
func (r *Registry) Windows() ([]model.ChatWindowView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(r.windows))
	for key := range r.windows {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]model.ChatWindowView, 0, len(keys))
	for _, key := range keys {
		out = append(out, viewOf(r.windows[key]))
	}
	return out, nil
}

// Reset discards every window and persisted transcript. Used on session
// teardown.
func (r *Registry) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = make(map[string]*window)
	r.loaded = true
	if r.store == nil {
		return nil
	}
	if err := r.store.DeletePrefix(keyPrefix); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "clear chat transcripts", err)
	}
	return nil
}

// InvalidateAccount discards every window. Transcripts are not scoped per
// account, so an account switch clears them all rather than leaking one
// account's conversations to the next.
func (r *Registry) InvalidateAccount(account string) {
	_ = r.Reset()
}

// InvalidateAll discards every window, persisted transcripts included.
func (r *Registry) InvalidateAll() {
	_ = r.Reset()
}

func viewOf(w *window) model.ChatWindowView {
	return model.ChatWindowView{
		FeatureKey: w.FeatureKey,
		Visible:    w.Visible,
		Messages:   append([]model.ChatMessage(nil), w.Messages...),
	}
}

package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// Entry describes one registered provider and its routing attributes.
type Entry struct {
	ID       string
	Priority int
	Active   bool
	Channels []domain.Channel
	Provider Provider
}

func (e Entry) Supports(channel domain.Channel) bool {
	for _, c := range e.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// Registry holds providers keyed by id and selects one per send.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

func (r *Registry) Register(entry Entry) error {
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		return fmt.Errorf("provider id is required")
	}
	if entry.Provider == nil {
		return fmt.Errorf("provider %q implementation is required", id)
	}
	if len(entry.Channels) == 0 {
		return fmt.Errorf("provider %q must declare at least one channel", id)
	}
	entry.ID = id

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("provider %q is already registered", id)
	}
	r.entries[id] = entry
	return nil
}

// Select resolves the provider for a send. When explicitID is set it must
// name an active provider that supports the channel; otherwise active
// providers supporting the channel are ordered ascending by priority and the
// first wins. No match is a terminal no-provider failure.
func (r *Registry) Select(channel domain.Channel, explicitID *string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if explicitID != nil && strings.TrimSpace(*explicitID) != "" {
		id := strings.TrimSpace(*explicitID)
		entry, ok := r.entries[id]
		if !ok {
			return Entry{}, fmt.Errorf("%w: provider %q is not registered", domain.ErrNoProviderAvailable, id)
		}
		if !entry.Active {
			return Entry{}, fmt.Errorf("%w: provider %q is inactive", domain.ErrNoProviderAvailable, id)
		}
		if !entry.Supports(channel) {
			return Entry{}, fmt.Errorf("%w: provider %q does not support channel %s", domain.ErrNoProviderAvailable, id, channel)
		}
		return entry, nil
	}

	candidates := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.Active && entry.Supports(channel) {
			candidates = append(candidates, entry)
		}
	}
	if len(candidates) == 0 {
		return Entry{}, fmt.Errorf("%w: channel %s", domain.ErrNoProviderAvailable, channel)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	return candidates[0], nil
}

// List returns registered provider ids sorted for stable output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

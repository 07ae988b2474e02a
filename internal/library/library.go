// Package library manages the visual style and character collection:
// predefined styles shipped with the binary, plus analyzed or hand-written
// items the user saves. Exactly one style is active at all times; at most
// one character is.
package library

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/storage"
)

// Kind distinguishes the two item families.
type Kind string

const (
	KindStyle     Kind = "style"
	KindCharacter Kind = "character"
)

// Item is one reusable style or character description.
type Item struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Predefined  bool   `json:"predefined,omitempty"`
}

type persisted struct {
	Items             []Item `json:"items"`
	ActiveStyleID     string `json:"activeStyleId"`
	ActiveCharacterID string `json:"activeCharacterId"`
}

// Library is the style/character collection. Mutations persist synchronously
// under the customAnalyzedItems settings key; predefined styles are never
// written.
type Library struct {
	mu         sync.Mutex
	db         *storage.Store
	predefined []Item
	state      persisted
}

// New loads the library. Predefined styles come from the embedded catalog;
// their ids are stable name-derived slugs so active selections survive
// restarts.
func New(db *storage.Store, catalog *prompt.Catalog) (*Library, error) {
	l := &Library{db: db}
	for _, s := range catalog.Styles() {
		l.predefined = append(l.predefined, Item{
			ID:          "predefined:" + slug(s.Name),
			Kind:        KindStyle,
			Name:        s.Name,
			Description: s.Description,
			Predefined:  true,
		})
	}
	err := db.GetSetting(storage.KeyLibrary, &l.state)
	if err != nil && err != storage.ErrNotFound {
		return nil, fmt.Errorf("loading library: %w", err)
	}
	if l.findStyle(l.state.ActiveStyleID) == nil && len(l.predefined) > 0 {
		l.state.ActiveStyleID = l.predefined[0].ID
	}
	return l, nil
}

func slug(name string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, name))
}

// Styles returns predefined styles followed by saved custom styles.
func (l *Library) Styles() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]Item{}, l.predefined...)
	for _, it := range l.state.Items {
		if it.Kind == KindStyle {
			out = append(out, it)
		}
	}
	return out
}

// Characters returns the saved characters.
func (l *Library) Characters() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Item
	for _, it := range l.state.Items {
		if it.Kind == KindCharacter {
			out = append(out, it)
		}
	}
	return out
}

// Add saves a new item (typically the output of an image analysis).
func (l *Library) Add(kind Kind, name, description string) (Item, error) {
	if kind != KindStyle && kind != KindCharacter {
		return Item{}, provider.Errf(provider.KindValidation, "unknown item kind %q", kind)
	}
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" || description == "" {
		return Item{}, provider.Errf(provider.KindValidation, "item name and description must not be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	it := Item{ID: uuid.NewString(), Kind: kind, Name: name, Description: description}
	prev := l.state.Items
	l.state.Items = append(l.state.Items, it)
	if err := l.persist(); err != nil {
		// Keep memory in step with the durable store.
		l.state.Items = prev
		return Item{}, err
	}
	return it, nil
}

// Delete removes a saved item. Predefined styles cannot be deleted. Deleting
// the active style falls back to the first predefined style; deleting the
// active character clears the selection.
func (l *Library) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.predefined {
		if p.ID == id {
			return provider.Errf(provider.KindValidation, "predefined styles cannot be deleted")
		}
	}
	idx := -1
	for i, it := range l.state.Items {
		if it.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return storage.ErrNotFound
	}
	l.state.Items = append(l.state.Items[:idx], l.state.Items[idx+1:]...)
	if l.state.ActiveStyleID == id {
		l.state.ActiveStyleID = ""
		if len(l.predefined) > 0 {
			l.state.ActiveStyleID = l.predefined[0].ID
		}
	}
	if l.state.ActiveCharacterID == id {
		l.state.ActiveCharacterID = ""
	}
	return l.persist()
}

// SetActiveStyle selects the active style. The id must name an existing
// style; the active style can never be cleared, only replaced.
func (l *Library) SetActiveStyle(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.findStyle(id) == nil {
		return provider.Errf(provider.KindValidation, "no style with id %q", id)
	}
	l.state.ActiveStyleID = id
	return l.persist()
}

// SetActiveCharacter selects the active character; an empty id clears the
// selection.
func (l *Library) SetActiveCharacter(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id != "" && l.findItem(id, KindCharacter) == nil {
		return provider.Errf(provider.KindValidation, "no character with id %q", id)
	}
	l.state.ActiveCharacterID = id
	return l.persist()
}

// ActiveStyle returns the active style.
func (l *Library) ActiveStyle() Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	if it := l.findStyle(l.state.ActiveStyleID); it != nil {
		return *it
	}
	if len(l.predefined) > 0 {
		return l.predefined[0]
	}
	return Item{}
}

// ActiveCharacter returns the active character, if one is selected.
func (l *Library) ActiveCharacter() (Item, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.ActiveCharacterID == "" {
		return Item{}, false
	}
	if it := l.findItem(l.state.ActiveCharacterID, KindCharacter); it != nil {
		return *it, true
	}
	return Item{}, false
}

func (l *Library) findStyle(id string) *Item {
	for i := range l.predefined {
		if l.predefined[i].ID == id {
			return &l.predefined[i]
		}
	}
	return l.findItem(id, KindStyle)
}

func (l *Library) findItem(id string, kind Kind) *Item {
	for i := range l.state.Items {
		if l.state.Items[i].ID == id && l.state.Items[i].Kind == kind {
			return &l.state.Items[i]
		}
	}
	return nil
}

func (l *Library) persist() error {
	if err := l.db.SetSetting(storage.KeyLibrary, l.state); err != nil {
		return fmt.Errorf("persisting library: %w", err)
	}
	return nil
}

package library

import (
	"testing"

	"github.com/minhvu/shortreel/internal/prompt"
	"github.com/minhvu/shortreel/internal/provider"
	"github.com/minhvu/shortreel/internal/storage"
)

func newTestLibrary(t *testing.T) (*Library, *storage.Store) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	catalog, err := prompt.LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	l, err := New(db, catalog)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, db
}

func TestDefaultActiveStyleIsFirstPredefined(t *testing.T) {
	l, _ := newTestLibrary(t)
	styles := l.Styles()
	if len(styles) == 0 {
		t.Fatal("no predefined styles loaded")
	}
	active := l.ActiveStyle()
	if active.ID != styles[0].ID {
		t.Errorf("default active = %q, want first predefined %q", active.ID, styles[0].ID)
	}
	if !active.Predefined {
		t.Error("default active style should be predefined")
	}
}

func TestAddAndActivateCustomStyle(t *testing.T) {
	l, _ := newTestLibrary(t)

	it, err := l.Add(KindStyle, "Analyzed Watercolor", "soft watercolor washes, grainy paper texture")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.SetActiveStyle(it.ID); err != nil {
		t.Fatalf("SetActiveStyle: %v", err)
	}
	if got := l.ActiveStyle(); got.ID != it.ID {
		t.Errorf("active = %+v", got)
	}

	// Deleting the active custom style falls back to the first predefined.
	if err := l.Delete(it.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := l.ActiveStyle(); !got.Predefined {
		t.Errorf("after delete active should be predefined, got %+v", got)
	}
}

func TestPredefinedStylesAreProtected(t *testing.T) {
	l, _ := newTestLibrary(t)
	first := l.Styles()[0]
	if err := l.Delete(first.ID); provider.KindOf(err) != provider.KindValidation {
		t.Fatalf("deleting predefined style: %v", err)
	}
}

func TestCharacterSelectionIsOptional(t *testing.T) {
	l, _ := newTestLibrary(t)

	if _, ok := l.ActiveCharacter(); ok {
		t.Fatal("no character should be active by default")
	}

	it, err := l.Add(KindCharacter, "Milo", "Character Name: Milo\nSpecies: gray tabby cat\nDetailed Appearance: ...")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.SetActiveCharacter(it.ID); err != nil {
		t.Fatalf("SetActiveCharacter: %v", err)
	}
	got, ok := l.ActiveCharacter()
	if !ok || got.Name != "Milo" {
		t.Errorf("active character = %+v ok=%v", got, ok)
	}

	// Clearing is allowed for characters, unlike styles.
	if err := l.SetActiveCharacter(""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := l.ActiveCharacter(); ok {
		t.Error("selection not cleared")
	}

	if err := l.SetActiveCharacter("bogus"); provider.KindOf(err) != provider.KindValidation {
		t.Errorf("unknown character id: %v", err)
	}
}

func TestAddPersistFailureRollsBack(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	catalog, err := prompt.LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	l, err := New(db, catalog)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A closed database makes the synchronous write fail; the item must not
	// survive in memory.
	db.Close()

	if _, err := l.Add(KindCharacter, "Mai", "a quiet ferry pilot"); err == nil {
		t.Fatal("expected persist error")
	}
	if got := l.Characters(); len(got) != 0 {
		t.Errorf("unpersisted item left in memory: %+v", got)
	}
}

func TestLibraryPersistsAcrossReload(t *testing.T) {
	l, db := newTestLibrary(t)
	catalog, _ := prompt.LoadCatalog()

	it, err := l.Add(KindStyle, "Neon Noir", "rain-slick streets, saturated neon reflections")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.SetActiveStyle(it.ID); err != nil {
		t.Fatalf("SetActiveStyle: %v", err)
	}

	l2, err := New(db, catalog)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := l2.ActiveStyle(); got.ID != it.ID || got.Name != "Neon Noir" {
		t.Errorf("selection lost on reload: %+v", got)
	}
}

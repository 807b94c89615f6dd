package core_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/shelf/pkg/core"
)

func ptr(s string) *string { return &s }

// fixture: root items a, b, c; item d in folder f1; folders f1, f2.
func fixture() core.Document {
	return core.Document{
		Items: []core.Item{
			{ID: "a", Title: "Alpha", Icon: core.IconBook},
			{ID: "b", Title: "Bravo", Icon: core.IconArrowUp},
			{ID: "c", Title: "Charlie", Icon: core.IconArrowDown},
			{ID: "d", Title: "Delta", Icon: core.IconBook, FolderID: ptr("f1")},
		},
		Folders: []core.Folder{
			{ID: "f1", Name: "Reading", IsOpen: true},
			{ID: "f2", Name: "Later"},
		},
		ItemOrder:   []string{"a", "b", "c", "d"},
		FolderOrder: []string{"f1", "f2"},
	}
}

func TestReorder_Scenario(t *testing.T) {
	doc := core.Document{
		Items:       []core.Item{{ID: "a"}, {ID: "b"}},
		Folders:     []core.Folder{},
		ItemOrder:   []string{"a", "b"},
		FolderOrder: []string{},
	}

	out := core.Reorder(doc, "b", "a")
	assert.Equal(t, []string{"b", "a"}, out.ItemOrder)
	assert.Equal(t, []string{"a", "b"}, doc.ItemOrder, "input must not be mutated")
}

func TestReorder(t *testing.T) {
	t.Run("Moves Before Target", func(t *testing.T) {
		out := core.Reorder(fixture(), "a", "d")
		assert.Equal(t, []string{"b", "c", "a", "d"}, out.ItemOrder)
	})

	t.Run("Self Move Is NoOp", func(t *testing.T) {
		doc := fixture()
		assert.Equal(t, doc, core.Reorder(doc, "b", "b"))
	})

	t.Run("Folders", func(t *testing.T) {
		out := core.Reorder(fixture(), "f2", "f1")
		assert.Equal(t, []string{"f2", "f1"}, out.FolderOrder)
	})

	t.Run("Cross Kind Rejected", func(t *testing.T) {
		doc := fixture()
		out, err := core.ReorderChecked(doc, "a", "f1")
		require.ErrorIs(t, err, core.ErrCrossKindReorder)
		assert.Equal(t, doc, out)
		assert.Equal(t, doc, core.Reorder(doc, "f1", "a"))
	})
}

func TestMoveIntoFolder_Scenario(t *testing.T) {
	doc := fixture()
	out := core.MoveIntoFolder(doc, "a", "f1")

	it, ok := out.Item("a")
	require.True(t, ok)
	require.NotNil(t, it.FolderID)
	assert.Equal(t, "f1", *it.FolderID)
	assert.Equal(t, doc.ItemOrder, out.ItemOrder)
	assert.Equal(t, []string{"a", "d"}, out.ItemsIn("f1"))
}

func TestMoveIntents_Idempotent(t *testing.T) {
	doc := fixture()

	once := core.MoveToRoot(doc, "d")
	assert.Equal(t, once, core.MoveToRoot(once, "d"))

	into := core.MoveIntoFolder(doc, "b", "f2")
	assert.Equal(t, into, core.MoveIntoFolder(into, "b", "f2"))
}

func TestUnknownIDs_NoOp(t *testing.T) {
	doc := fixture()

	assert.Equal(t, doc, core.MoveIntoFolder(doc, "ghost", "f1"))
	assert.Equal(t, doc, core.MoveIntoFolder(doc, "a", "ghost"))
	assert.Equal(t, doc, core.MoveToRoot(doc, "ghost"))
	assert.Equal(t, doc, core.Reorder(doc, "ghost", "a"))
	assert.Equal(t, doc, core.Reorder(doc, "a", "ghost"))
	assert.Equal(t, doc, core.Drop(doc, "ghost", "a"))
	assert.Equal(t, doc, core.Drop(doc, "a", "ghost"))
	assert.Equal(t, doc, core.RemoveItem(doc, "ghost"))
	assert.Equal(t, doc, core.RemoveFolder(doc, "ghost"))
	assert.Equal(t, doc, core.ToggleFolder(doc, "ghost"))
}

func TestDrop(t *testing.T) {
	t.Run("Folder Item Onto Root Item", func(t *testing.T) {
		out := core.Drop(fixture(), "d", "b")
		it, _ := out.Item("d")
		assert.Nil(t, it.FolderID)
		assert.Equal(t, []string{"a", "d", "b", "c"}, out.ItemOrder)
	})

	t.Run("Root Item Onto Folder Item", func(t *testing.T) {
		doc := fixture()
		out := core.Drop(doc, "a", "d")
		it, _ := out.Item("a")
		require.NotNil(t, it.FolderID)
		assert.Equal(t, "f1", *it.FolderID)
		assert.Equal(t, doc.ItemOrder, out.ItemOrder)
	})

	t.Run("Item Onto Folder", func(t *testing.T) {
		out := core.Drop(fixture(), "c", "f2")
		assert.Equal(t, []string{"c"}, out.ItemsIn("f2"))
	})

	t.Run("Same Folder Reorders", func(t *testing.T) {
		doc := core.MoveIntoFolder(fixture(), "a", "f1")
		out := core.Drop(doc, "d", "a")
		assert.Equal(t, []string{"d", "a"}, out.ItemsIn("f1"))
	})

	t.Run("Root Onto Root", func(t *testing.T) {
		out := core.Drop(fixture(), "c", "a")
		assert.Equal(t, []string{"c", "a", "b", "d"}, out.ItemOrder)
	})

	t.Run("Folder Onto Folder", func(t *testing.T) {
		out := core.Drop(fixture(), "f2", "f1")
		assert.Equal(t, []string{"f2", "f1"}, out.FolderOrder)
	})
}

func TestRemoveFolder_ReleasesItems(t *testing.T) {
	out := core.RemoveFolder(fixture(), "f1")
	require.NoError(t, out.Check())
	assert.Equal(t, []string{"f2"}, out.FolderOrder)
	assert.Equal(t, []string{"a", "b", "c", "d"}, out.ItemsIn(""))
}

// TestOperations_PreserveInvariants drives random sequences of intents and
// checks every intermediate document.
func TestOperations_PreserveInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d", "e", "f1", "f2", "f3", "ghost"}
	pick := func() string { return ids[rng.Intn(len(ids))] }

	for run := 0; run < 50; run++ {
		doc := fixture()
		for step := 0; step < 200; step++ {
			switch rng.Intn(9) {
			case 0:
				doc = core.MoveIntoFolder(doc, pick(), pick())
			case 1:
				doc = core.MoveToRoot(doc, pick())
			case 2:
				doc = core.Reorder(doc, pick(), pick())
			case 3:
				doc = core.Drop(doc, pick(), pick())
			case 4:
				doc = core.AddItem(doc, core.Item{ID: pick(), Title: "new", Icon: core.IconBook, FolderID: ptr(pick())})
			case 5:
				doc = core.AddFolder(doc, core.Folder{ID: pick(), Name: "new"})
			case 6:
				doc = core.RemoveItem(doc, pick())
			case 7:
				doc = core.RemoveFolder(doc, pick())
			case 8:
				doc = core.ToggleFolder(doc, pick())
			}
			require.NoError(t, doc.Check(), "run %d step %d", run, step)
		}
	}
}

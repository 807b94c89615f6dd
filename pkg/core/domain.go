// Document is the central entity of the domain.
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Icon identifies the glyph rendered next to an item.
type Icon string

const (
	IconBook      Icon = "book"
	IconArrowUp   Icon = "arrow-up"
	IconArrowDown Icon = "arrow-down"
)

// Valid reports whether the icon is part of the known set.
func (i Icon) Valid() bool {
	switch i {
	case IconBook, IconArrowUp, IconArrowDown:
		return true
	}
	return false
}

// Item is a single entry on the shelf.
// Title and Icon are fixed at creation; only FolderID moves.
type Item struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Icon     Icon    `json:"icon"`
	FolderID *string `json:"folderId"`
}

// InFolder reports whether the item currently sits in the given folder.
// An empty folderID means the root level.
func (it Item) InFolder(folderID string) bool {
	if it.FolderID == nil {
		return folderID == ""
	}
	return *it.FolderID == folderID
}

// Folder groups items. Folders never nest.
type Folder struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsOpen bool   `json:"isOpen"`
}

// Document is the unit of synchronization.
// It is always replaced wholesale, never patched field by field.
type Document struct {
	Items       []Item   `json:"items"`
	Folders     []Folder `json:"folders"`
	ItemOrder   []string `json:"itemOrder"`
	FolderOrder []string `json:"folderOrder"`
}

// Empty returns a document with all containers allocated, so it encodes as
// arrays rather than nulls.
func Empty() Document {
	return Document{
		Items:       []Item{},
		Folders:     []Folder{},
		ItemOrder:   []string{},
		FolderOrder: []string{},
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{
		Items:       make([]Item, len(d.Items)),
		Folders:     slices.Clone(d.Folders),
		ItemOrder:   slices.Clone(d.ItemOrder),
		FolderOrder: slices.Clone(d.FolderOrder),
	}
	if out.Folders == nil {
		out.Folders = []Folder{}
	}
	if out.ItemOrder == nil {
		out.ItemOrder = []string{}
	}
	if out.FolderOrder == nil {
		out.FolderOrder = []string{}
	}
	for i, it := range d.Items {
		if it.FolderID != nil {
			f := *it.FolderID
			it.FolderID = &f
		}
		out.Items[i] = it
	}
	return out
}

// Item returns the item with the given id.
func (d Document) Item(id string) (Item, bool) {
	idx := d.itemIndex(id)
	if idx < 0 {
		return Item{}, false
	}
	return d.Items[idx], true
}

// Folder returns the folder with the given id.
func (d Document) Folder(id string) (Folder, bool) {
	idx := d.folderIndex(id)
	if idx < 0 {
		return Folder{}, false
	}
	return d.Folders[idx], true
}

func (d Document) itemIndex(id string) int {
	return slices.IndexFunc(d.Items, func(it Item) bool { return it.ID == id })
}

func (d Document) folderIndex(id string) int {
	return slices.IndexFunc(d.Folders, func(f Folder) bool { return f.ID == id })
}

// ItemsIn returns the ids of the items in folderID ("" for root) in display
// order. Per-folder order is derived from ItemOrder, never stored.
func (d Document) ItemsIn(folderID string) []string {
	out := []string{}
	for _, id := range d.ItemOrder {
		it, ok := d.Item(id)
		if ok && it.InFolder(folderID) {
			out = append(out, id)
		}
	}
	return out
}

// Check returns the first invariant violation found in the document, or nil.
func (d Document) Check() error {
	items := make(map[string]struct{}, len(d.Items))
	for _, it := range d.Items {
		if _, dup := items[it.ID]; dup {
			return fmt.Errorf("%w: duplicate item %q", ErrInvalidDocument, it.ID)
		}
		items[it.ID] = struct{}{}
	}
	folders := make(map[string]struct{}, len(d.Folders))
	for _, f := range d.Folders {
		if _, dup := folders[f.ID]; dup {
			return fmt.Errorf("%w: duplicate folder %q", ErrInvalidDocument, f.ID)
		}
		folders[f.ID] = struct{}{}
	}
	if err := checkPermutation("itemOrder", d.ItemOrder, items); err != nil {
		return err
	}
	if err := checkPermutation("folderOrder", d.FolderOrder, folders); err != nil {
		return err
	}
	for _, it := range d.Items {
		if it.FolderID == nil {
			continue
		}
		if _, ok := folders[*it.FolderID]; !ok {
			return fmt.Errorf("%w: item %q references unknown folder %q", ErrInvalidDocument, it.ID, *it.FolderID)
		}
	}
	return nil
}

func checkPermutation(name string, order []string, ids map[string]struct{}) error {
	if len(order) != len(ids) {
		return fmt.Errorf("%w: %s has %d entries for %d ids", ErrInvalidDocument, name, len(order), len(ids))
	}
	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		if _, ok := ids[id]; !ok {
			return fmt.Errorf("%w: %s references unknown id %q", ErrInvalidDocument, name, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s repeats id %q", ErrInvalidDocument, name, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Normalize repairs a document so that Check passes: duplicate entities are
// dropped (first wins), dangling folder references are cleared, and both
// order arrays keep their surviving relative order with missing ids appended
// in container order.
func (d Document) Normalize() Document {
	out := Empty()

	folders := make(map[string]struct{}, len(d.Folders))
	for _, f := range d.Folders {
		if _, dup := folders[f.ID]; dup {
			continue
		}
		folders[f.ID] = struct{}{}
		out.Folders = append(out.Folders, f)
	}

	items := make(map[string]struct{}, len(d.Items))
	for _, it := range d.Items {
		if _, dup := items[it.ID]; dup {
			continue
		}
		items[it.ID] = struct{}{}
		if it.FolderID != nil {
			if _, ok := folders[*it.FolderID]; !ok {
				it.FolderID = nil
			} else {
				f := *it.FolderID
				it.FolderID = &f
			}
		}
		out.Items = append(out.Items, it)
	}

	out.ItemOrder = rebuildOrder(d.ItemOrder, items, func(yield func(string)) {
		for _, it := range out.Items {
			yield(it.ID)
		}
	})
	out.FolderOrder = rebuildOrder(d.FolderOrder, folders, func(yield func(string)) {
		for _, f := range out.Folders {
			yield(f.ID)
		}
	})
	return out
}

func rebuildOrder(order []string, ids map[string]struct{}, all func(func(string))) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range order {
		if _, ok := ids[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	all(func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	})
	return out
}

// Canonical returns the compact JSON encoding used to compare documents for
// equality (duplicate and echo suppression).
func (d Document) Canonical() []byte {
	// Marshal of this struct cannot fail.
	data, _ := json.Marshal(d.Clone())
	return data
}

// Equal reports whether two documents have identical canonical encodings.
func (d Document) Equal(other Document) bool {
	return bytes.Equal(d.Canonical(), other.Canonical())
}

// requiredContainers are the top-level fields every document payload must
// carry as JSON arrays.
var requiredContainers = []string{"items", "folders", "itemOrder", "folderOrder"}

// DecodeDocument parses a document payload, validating its shape: every
// container must be present and be an array. Shape errors wrap
// ErrInvalidDocument.
func DecodeDocument(data []byte) (Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if raw == nil {
		return Document{}, fmt.Errorf("%w: payload is not an object", ErrInvalidDocument)
	}
	for _, key := range requiredContainers {
		val, ok := raw[key]
		if !ok {
			return Document{}, fmt.Errorf("%w: missing %s", ErrInvalidDocument, key)
		}
		trimmed := bytes.TrimSpace(val)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return Document{}, fmt.Errorf("%w: %s must be an array", ErrInvalidDocument, key)
		}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc.Clone(), nil
}

// MarshalIndent renders the document the way it is stored on disk.
func (d Document) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d.Clone(), "", "  ")
}

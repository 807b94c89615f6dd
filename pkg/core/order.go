package core

import (
	"slices"
)

// The functions in this file never mutate their input. They return a new
// Document, or the input unchanged when the intent refers to ids that are not
// present (drag targets may disappear concurrently).

// MoveIntoFolder places an item in a folder without touching its position in
// ItemOrder.
func MoveIntoFolder(d Document, itemID, folderID string) Document {
	idx := d.itemIndex(itemID)
	if idx < 0 || d.folderIndex(folderID) < 0 {
		return d
	}
	if d.Items[idx].InFolder(folderID) {
		return d
	}
	out := d.Clone()
	f := folderID
	out.Items[idx].FolderID = &f
	return out
}

// MoveToRoot takes an item out of its folder.
func MoveToRoot(d Document, itemID string) Document {
	idx := d.itemIndex(itemID)
	if idx < 0 || d.Items[idx].FolderID == nil {
		return d
	}
	out := d.Clone()
	out.Items[idx].FolderID = nil
	return out
}

// Reorder moves id so that it sits immediately before beforeID. Both ids must
// belong to the same order array; mixing an item and a folder is a no-op.
func Reorder(d Document, id, beforeID string) Document {
	out, _ := ReorderChecked(d, id, beforeID)
	return out
}

// ReorderChecked is Reorder that reports ErrCrossKindReorder when id and
// beforeID live in different order arrays. Unknown ids are still a silent
// no-op.
func ReorderChecked(d Document, id, beforeID string) (Document, error) {
	if id == beforeID {
		return d, nil
	}
	idItem, idFolder := slices.Contains(d.ItemOrder, id), slices.Contains(d.FolderOrder, id)
	beforeItem, beforeFolder := slices.Contains(d.ItemOrder, beforeID), slices.Contains(d.FolderOrder, beforeID)

	switch {
	case idItem && beforeItem:
		out := d.Clone()
		out.ItemOrder = moveBefore(out.ItemOrder, id, beforeID)
		return out, nil
	case idFolder && beforeFolder:
		out := d.Clone()
		out.FolderOrder = moveBefore(out.FolderOrder, id, beforeID)
		return out, nil
	case (idItem && beforeFolder) || (idFolder && beforeItem):
		return d, ErrCrossKindReorder
	}
	return d, nil
}

func moveBefore(order []string, id, beforeID string) []string {
	order = slices.DeleteFunc(order, func(s string) bool { return s == id })
	at := slices.Index(order, beforeID)
	return slices.Insert(order, at, id)
}

// Drop resolves a drag-and-drop gesture of dragged onto target.
//
//   - item onto a folder: MoveIntoFolder.
//   - item onto a root item: MoveToRoot if needed, then Reorder before target.
//   - item onto an item in another folder: MoveIntoFolder that folder.
//   - item onto an item in the same folder: Reorder before target.
//   - folder onto a folder: Reorder.
func Drop(d Document, draggedID, targetID string) Document {
	if draggedID == targetID {
		return d
	}
	dragged, ok := d.Item(draggedID)
	if !ok {
		if _, isFolder := d.Folder(draggedID); isFolder {
			return Reorder(d, draggedID, targetID)
		}
		return d
	}

	if _, isFolder := d.Folder(targetID); isFolder {
		return MoveIntoFolder(d, draggedID, targetID)
	}

	target, ok := d.Item(targetID)
	if !ok {
		return d
	}

	if target.FolderID == nil {
		out := MoveToRoot(d, draggedID)
		return Reorder(out, draggedID, targetID)
	}
	if !dragged.InFolder(*target.FolderID) {
		return MoveIntoFolder(d, draggedID, *target.FolderID)
	}
	return Reorder(d, draggedID, targetID)
}

// AddItem appends a new item at the end of ItemOrder. A duplicate id or an
// empty id leaves the document unchanged; a folder reference that does not
// resolve is dropped.
func AddItem(d Document, it Item) Document {
	if it.ID == "" || d.itemIndex(it.ID) >= 0 {
		return d
	}
	out := d.Clone()
	if it.FolderID != nil {
		if d.folderIndex(*it.FolderID) < 0 {
			it.FolderID = nil
		} else {
			f := *it.FolderID
			it.FolderID = &f
		}
	}
	out.Items = append(out.Items, it)
	out.ItemOrder = append(out.ItemOrder, it.ID)
	return out
}

// AddFolder appends a new folder at the end of FolderOrder.
func AddFolder(d Document, f Folder) Document {
	if f.ID == "" || d.folderIndex(f.ID) >= 0 {
		return d
	}
	out := d.Clone()
	out.Folders = append(out.Folders, f)
	out.FolderOrder = append(out.FolderOrder, f.ID)
	return out
}

// RemoveItem deletes an item and its order entry.
func RemoveItem(d Document, itemID string) Document {
	idx := d.itemIndex(itemID)
	if idx < 0 {
		return d
	}
	out := d.Clone()
	out.Items = slices.Delete(out.Items, idx, idx+1)
	out.ItemOrder = slices.DeleteFunc(out.ItemOrder, func(s string) bool { return s == itemID })
	return out
}

// RemoveFolder deletes a folder. Its items move to the root level and keep
// their place in ItemOrder.
func RemoveFolder(d Document, folderID string) Document {
	idx := d.folderIndex(folderID)
	if idx < 0 {
		return d
	}
	out := d.Clone()
	out.Folders = slices.Delete(out.Folders, idx, idx+1)
	out.FolderOrder = slices.DeleteFunc(out.FolderOrder, func(s string) bool { return s == folderID })
	for i := range out.Items {
		if out.Items[i].InFolder(folderID) {
			out.Items[i].FolderID = nil
		}
	}
	return out
}

// ToggleFolder flips the presentation state of a folder.
func ToggleFolder(d Document, folderID string) Document {
	idx := d.folderIndex(folderID)
	if idx < 0 {
		return d
	}
	out := d.Clone()
	out.Folders[idx].IsOpen = !out.Folders[idx].IsOpen
	return out
}

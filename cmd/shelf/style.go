package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aretw0/shelf/pkg/core"
)

var (
	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	styleFolder = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	styleItem   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleError  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

var iconGlyphs = map[core.Icon]string{
	core.IconBook:      "▤",
	core.IconArrowUp:   "↑",
	core.IconArrowDown: "↓",
}

// renderShelf draws folders first (in folder order) with their items, then
// the root items.
func renderShelf(d core.Document) string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("Shelf"))
	b.WriteString(styleDim.Render(
		" (" + plural(len(d.Items), "item") + ", " + plural(len(d.Folders), "folder") + ")"))
	b.WriteString("\n")

	for _, fid := range d.FolderOrder {
		f, ok := d.Folder(fid)
		if !ok {
			continue
		}
		marker := "▾"
		if !f.IsOpen {
			marker = "▸"
		}
		children := d.ItemsIn(fid)
		b.WriteString(styleFolder.Render(marker+" "+f.Name) + styleDim.Render("  "+f.ID) + "\n")
		if !f.IsOpen {
			if len(children) > 0 {
				b.WriteString(styleDim.Render("    "+plural(len(children), "hidden item")) + "\n")
			}
			continue
		}
		for _, id := range children {
			b.WriteString("    " + renderItem(d, id) + "\n")
		}
	}
	for _, id := range d.ItemsIn("") {
		b.WriteString(renderItem(d, id) + "\n")
	}
	return b.String()
}

func renderItem(d core.Document, id string) string {
	it, _ := d.Item(id)
	glyph, ok := iconGlyphs[it.Icon]
	if !ok {
		glyph = "?"
	}
	return styleItem.Render(glyph+" "+it.Title) + styleDim.Render("  "+it.ID)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

package docs

import (
	"fmt"
	"strings"

	docs "google.golang.org/api/docs/v1"
)

// ToMarkdown renders a document as Markdown. Both legacy documents
// (content in doc.Body) and tabbed documents (content in doc.Tabs) are
// supported.
func ToMarkdown(doc *docs.Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("document is nil")
	}

	r := &markdownRenderer{}
	if doc.Title != "" {
		r.b.WriteString("# ")
		r.b.WriteString(doc.Title)
		r.b.WriteString("\n\n")
	}

	if len(doc.Tabs) > 0 {
		r.tabs(doc.Tabs, 2)
	} else if doc.Body != nil {
		r.body(doc.Body.Content)
	}

	return r.b.String(), nil
}

// ToPlainText extracts the plain text of a document, stripping all
// formatting. Both legacy and tabbed documents are supported.
func ToPlainText(doc *docs.Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("document is nil")
	}

	r := &textRenderer{}
	if doc.Title != "" {
		r.b.WriteString(doc.Title)
		r.b.WriteString("\n\n")
	}

	if len(doc.Tabs) > 0 {
		r.tabs(doc.Tabs, 0)
	} else if doc.Body != nil {
		r.body(doc.Body.Content)
	}

	return r.b.String(), nil
}

// markdownRenderer accumulates Markdown output while walking the
// document tree.
type markdownRenderer struct {
	b strings.Builder
}

// tabs renders each tab under a heading of the given level and recurses
// into child tabs one level deeper.
func (r *markdownRenderer) tabs(tabs []*docs.Tab, headingLevel int) {
	for i, tab := range tabs {
		r.b.WriteString(strings.Repeat("#", headingLevel))
		r.b.WriteString(" ")
		if tab.TabProperties != nil && tab.TabProperties.Title != "" {
			r.b.WriteString(tab.TabProperties.Title)
		} else {
			fmt.Fprintf(&r.b, "Tab %d", i+1)
		}
		r.b.WriteString("\n\n")

		if tab.DocumentTab != nil && tab.DocumentTab.Body != nil {
			r.body(tab.DocumentTab.Body.Content)
		}
		if len(tab.ChildTabs) > 0 {
			r.tabs(tab.ChildTabs, headingLevel+1)
		}
	}
}

func (r *markdownRenderer) body(content []*docs.StructuralElement) {
	for _, element := range content {
		switch {
		case element.Paragraph != nil:
			r.paragraph(element.Paragraph)
		case element.Table != nil:
			r.table(element.Table)
		case element.SectionBreak != nil:
			r.b.WriteString("\n---\n\n")
		}
	}
}

func (r *markdownRenderer) paragraph(para *docs.Paragraph) {
	if para == nil || para.Elements == nil {
		return
	}

	headingLevel := headingLevelOf(para.ParagraphStyle)
	if headingLevel > 0 {
		r.b.WriteString(strings.Repeat("#", headingLevel))
		r.b.WriteString(" ")
	}

	// All list paragraphs render as bullets. Distinguishing ordered
	// lists would require resolving the ListId against doc.Lists.
	isList := para.Bullet != nil
	if isList {
		r.b.WriteString("- ")
	}

	for _, elem := range para.Elements {
		switch {
		case elem.TextRun != nil:
			r.textRun(elem.TextRun)
		case elem.InlineObjectElement != nil:
			r.b.WriteString("[inline object]")
		}
	}

	r.b.WriteString("\n")
	if headingLevel > 0 || !isList {
		r.b.WriteString("\n")
	}
}

func (r *markdownRenderer) textRun(run *docs.TextRun) {
	content := run.Content
	if content == "" {
		return
	}
	style := run.TextStyle
	if style == nil {
		r.b.WriteString(content)
		return
	}

	if style.Link != nil && style.Link.Url != "" {
		r.b.WriteString("[")
		r.b.WriteString(strings.TrimSpace(content))
		r.b.WriteString("](")
		r.b.WriteString(style.Link.Url)
		r.b.WriteString(")")
		return
	}

	monospace := style.WeightedFontFamily != nil &&
		strings.Contains(style.WeightedFontFamily.FontFamily, "Courier")
	if monospace {
		r.b.WriteString("`")
		r.b.WriteString(strings.TrimSpace(content))
		r.b.WriteString("`")
		return
	}

	switch {
	case style.Bold && style.Italic:
		r.b.WriteString("***")
		r.b.WriteString(content)
		r.b.WriteString("***")
	case style.Bold:
		r.b.WriteString("**")
		r.b.WriteString(content)
		r.b.WriteString("**")
	case style.Italic:
		r.b.WriteString("*")
		r.b.WriteString(content)
		r.b.WriteString("*")
	default:
		r.b.WriteString(content)
	}
}

func (r *markdownRenderer) table(table *docs.Table) {
	if table == nil || len(table.TableRows) == 0 {
		return
	}

	for rowIndex, row := range table.TableRows {
		if row.TableCells == nil {
			continue
		}

		r.b.WriteString("|")
		for _, cell := range row.TableCells {
			r.b.WriteString(" ")
			r.b.WriteString(cellText(cell))
			r.b.WriteString(" |")
		}
		r.b.WriteString("\n")

		// The first row becomes the header.
		if rowIndex == 0 {
			r.b.WriteString("|")
			for range row.TableCells {
				r.b.WriteString(" --- |")
			}
			r.b.WriteString("\n")
		}
	}

	r.b.WriteString("\n")
}

// cellText flattens a table cell to a single line of unformatted text.
func cellText(cell *docs.TableCell) string {
	var b strings.Builder
	for _, element := range cell.Content {
		if element.Paragraph == nil {
			continue
		}
		for _, elem := range element.Paragraph.Elements {
			if elem.TextRun != nil {
				content := strings.TrimSpace(elem.TextRun.Content)
				b.WriteString(strings.ReplaceAll(content, "\n", " "))
			}
		}
	}
	return b.String()
}

// headingLevelOf maps a named paragraph style to a Markdown heading
// level, or 0 for body text.
func headingLevelOf(style *docs.ParagraphStyle) int {
	if style == nil {
		return 0
	}
	switch style.NamedStyleType {
	case "HEADING_1":
		return 1
	case "HEADING_2":
		return 2
	case "HEADING_3":
		return 3
	case "HEADING_4":
		return 4
	case "HEADING_5":
		return 5
	case "HEADING_6":
		return 6
	}
	return 0
}

// textRenderer accumulates plain text output while walking the
// document tree.
type textRenderer struct {
	b strings.Builder
}

func (r *textRenderer) tabs(tabs []*docs.Tab, depth int) {
	for i, tab := range tabs {
		r.b.WriteString(strings.Repeat("  ", depth))
		if tab.TabProperties != nil && tab.TabProperties.Title != "" {
			fmt.Fprintf(&r.b, "=== %s ===\n\n", tab.TabProperties.Title)
		} else {
			fmt.Fprintf(&r.b, "=== Tab %d ===\n\n", i+1)
		}

		if tab.DocumentTab != nil && tab.DocumentTab.Body != nil {
			r.body(tab.DocumentTab.Body.Content)
		}
		if len(tab.ChildTabs) > 0 {
			r.tabs(tab.ChildTabs, depth+1)
		}
		r.b.WriteString("\n")
	}
}

func (r *textRenderer) body(content []*docs.StructuralElement) {
	for _, element := range content {
		switch {
		case element.Paragraph != nil:
			r.paragraph(element.Paragraph)
		case element.Table != nil:
			r.table(element.Table)
		}
	}
}

func (r *textRenderer) paragraph(para *docs.Paragraph) {
	if para == nil {
		return
	}
	for _, elem := range para.Elements {
		if elem.TextRun != nil && elem.TextRun.Content != "" {
			r.b.WriteString(elem.TextRun.Content)
		}
	}
}

func (r *textRenderer) table(table *docs.Table) {
	if table == nil {
		return
	}
	for _, row := range table.TableRows {
		for _, cell := range row.TableCells {
			for _, element := range cell.Content {
				if element.Paragraph != nil {
					r.paragraph(element.Paragraph)
				}
			}
			r.b.WriteString("\t")
		}
		r.b.WriteString("\n")
	}
}

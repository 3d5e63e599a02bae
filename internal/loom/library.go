package loom

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ItemType distinguishes the two recorded-content kinds in a library.
type ItemType string

const (
	ItemClip    ItemType = "clip"
	ItemMeeting ItemType = "meeting"
)

// Item is one discoverable recording in the workspace library.
type Item struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Type     ItemType  `json:"type"`
	ShareURL string    `json:"shareUrl"`
	Date     time.Time `json:"date,omitzero"`

	// SummaryHTML is the card's summary blurb as raw markup, when present.
	SummaryHTML string `json:"-"`
}

// ParseLibraryHTML extracts recording items from the rendered library page
// using golang.org/x/net/html for tree-based parsing. Anchors addressing a
// share path are treated as items; one item per video ID, newest first.
func ParseLibraryHTML(body string) []Item {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var items []Item
	for _, a := range findElements(doc, "a") {
		item, ok := parseItemAnchor(a)
		if !ok || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.After(items[j].Date)
	})
	return items
}

// parseItemAnchor builds an Item from an <a> node when its href is a share link.
func parseItemAnchor(a *html.Node) (Item, bool) {
	href := getAttr(a, "href")
	if href == "" {
		return Item{}, false
	}
	if strings.HasPrefix(href, "/") {
		href = BaseURL + href
	}
	canonical, err := NormalizeShareURL(href)
	if err != nil {
		return Item{}, false
	}

	item := Item{
		ID:       VideoID(canonical),
		ShareURL: canonical,
		Type:     ItemClip,
	}

	// Title: prefer an explicit label over concatenated card text.
	if label := getAttr(a, "aria-label"); label != "" {
		item.Title = strings.TrimSpace(label)
	} else {
		item.Title = firstTextLine(a)
	}
	if item.Title == "" {
		item.Title = "Untitled recording"
	}

	// Meeting recordings carry a meeting marker somewhere on the card.
	if hasClass(a, "meeting") || strings.Contains(strings.ToLower(getAttr(a, "data-recording-type")), "meeting") {
		item.Type = ItemMeeting
	}

	// AI summary blurb, kept as markup for downstream conversion.
	for _, class := range []string{"summary", "description"} {
		if sn := findByClass(a, class); sn != nil {
			item.SummaryHTML = innerHTML(sn)
			break
		}
	}

	// Recorded-at date from a <time datetime="..."> inside the card.
	if tn := firstElement(a, "time"); tn != nil {
		if dt := getAttr(tn, "datetime"); dt != "" {
			if parsed, err := time.Parse(time.RFC3339, dt); err == nil {
				item.Date = parsed
			}
		}
	}

	return item, true
}

// FilterSince keeps items recorded in the last `days` days. Items without a
// parsable date are kept; dropping them would silently hide content.
func FilterSince(items []Item, days int) []Item {
	if days <= 0 {
		return items
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	var out []Item
	for _, it := range items {
		if it.Date.IsZero() || it.Date.After(cutoff) {
			out = append(out, it)
		}
	}
	return out
}

// --- HTML tree helpers ---

// getAttr returns the value of an attribute on a node, or "".
func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// hasClass checks if a node's class attribute contains the given class name.
func hasClass(n *html.Node, className string) bool {
	return strings.Contains(getAttr(n, "class"), className)
}

// textContent recursively extracts all text from a node.
func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

// firstTextLine returns the first non-empty line of a node's text content.
func firstTextLine(n *html.Node) string {
	for _, line := range strings.Split(textContent(n), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// findElements collects all descendant elements with the given tag name.
func findElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	if n.Type == html.ElementNode && n.Data == tag {
		out = append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, findElements(c, tag)...)
	}
	return out
}

// findByClass finds the first descendant element whose class contains className.
func findByClass(n *html.Node, className string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, className) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, className); found != nil {
			return found
		}
	}
	return nil
}

// innerHTML renders a node's children back to markup.
func innerHTML(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&sb, c)
	}
	return strings.TrimSpace(sb.String())
}

// firstElement finds the first descendant element with the given tag name.
func firstElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := firstElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

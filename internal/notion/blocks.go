package notion

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/anatolykoptev/go_loom/internal/loom"
	"github.com/anatolykoptev/go_loom/internal/session"
)

// maxRichTextLen is Notion's per-rich-text content limit.
const maxRichTextLen = 2000

// maxChildrenPerRequest is Notion's per-request block count limit.
const maxChildrenPerRequest = 100

type textLink struct {
	URL string `json:"url"`
}

type textSpan struct {
	Content string    `json:"content"`
	Link    *textLink `json:"link,omitempty"`
}

type richText struct {
	Type string   `json:"type"`
	Text textSpan `json:"text"`
}

type richGroup struct {
	RichText []richText `json:"rich_text"`
}

type block struct {
	Object    string     `json:"object"`
	Type      string     `json:"type"`
	Paragraph *richGroup `json:"paragraph,omitempty"`
	Heading2  *richGroup `json:"heading_2,omitempty"`
	Divider   *struct{}  `json:"divider,omitempty"`
}

func plainText(s string) []richText {
	return []richText{{Type: "text", Text: textSpan{Content: s}}}
}

func paragraphBlock(s string) block {
	return block{Object: "block", Type: "paragraph", Paragraph: &richGroup{RichText: plainText(s)}}
}

func headingBlock(s string) block {
	return block{Object: "block", Type: "heading_2", Heading2: &richGroup{RichText: plainText(s)}}
}

func dividerBlock() block {
	return block{Object: "block", Type: "divider", Divider: &struct{}{}}
}

func linkBlock(label, url string) block {
	return block{Object: "block", Type: "paragraph", Paragraph: &richGroup{
		RichText: []richText{{Type: "text", Text: textSpan{Content: label, Link: &textLink{URL: url}}}},
	}}
}

// buildBlocks lays out the page body: source link, recording date, the
// card summary converted to markdown, then the transcript itself.
func buildBlocks(item loom.Item, res *session.Result) []block {
	blocks := []block{linkBlock("Watch on Loom", item.ShareURL)}

	if !item.Date.IsZero() {
		blocks = append(blocks, paragraphBlock("Recorded "+item.Date.Format("January 2, 2006")))
	}
	if md := summaryMarkdown(item.SummaryHTML); md != "" {
		blocks = append(blocks, headingBlock("Summary"))
		for _, chunk := range chunkText(md, maxRichTextLen) {
			blocks = append(blocks, paragraphBlock(chunk))
		}
	}

	blocks = append(blocks, dividerBlock(), headingBlock("Transcript"))
	for _, chunk := range chunkText(res.Transcript, maxRichTextLen) {
		blocks = append(blocks, paragraphBlock(chunk))
	}
	return blocks
}

// summaryMarkdown converts a card's summary markup to markdown text.
func summaryMarkdown(htmlStr string) string {
	if strings.TrimSpace(htmlStr) == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(htmlStr)
	if err != nil {
		// Unparsable markup: fall back to the raw text.
		return strings.TrimSpace(htmlStr)
	}
	return strings.TrimSpace(md)
}

// chunkText splits text into pieces of at most max bytes, preferring
// paragraph then line boundaries so segments stay readable.
func chunkText(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		if len(para) > max {
			// A single oversized paragraph gets split on lines, then hard-cut.
			flush()
			chunks = append(chunks, splitLong(para, max)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+2+len(para) > max {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return chunks
}

func splitLong(para string, max int) []string {
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(para, "\n") {
		for len(line) > max {
			out = append(out, line[:max])
			line = line[max:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(line) > max {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(line)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

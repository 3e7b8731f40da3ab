// Package vistext extracts the normalized visual-text buffer from EDGAR
// HTML. All downstream regexes are defined on this buffer.
//
// EDGAR HTML is often non-semantic (<div>, <font>, <br><br> instead of
// paragraphs), so the walker keys on a block-element set rather than <p>
// tags, separates table cells with a guard token so adjacent words cannot
// fuse, and folds smart quotes/dashes/spaces to the ASCII forms the
// pattern pack assumes.
package vistext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// DefaultPreambleChars bounds the preamble-anchored patterns.
const DefaultPreambleChars = 5000

// blockElements create visual breaks.
var blockElements = map[string]bool{
	"div": true, "p": true, "tr": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "thead": true, "tbody": true, "tfoot": true,
	"section": true, "article": true, "header": true, "footer": true,
	"aside": true, "nav": true, "blockquote": true, "pre": true, "hr": true,
	"address": true, "figcaption": true, "figure": true, "main": true,
	"dd": true, "dt": true, "dl": true,
}

// skipElements and their descendants emit no text.
var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"head": true, "meta": true, "link": true,
}

// charReplacer folds smart punctuation and special spaces to ASCII.
var charReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
	"–", "-", "—", "-", "―", "-", "‒", "-",
	" ", " ", " ", " ", " ", " ", " ", " ", " ", " ",
	"\u200B", "", "\uFEFF", "",
)

var (
	spaceRunRE    = regexp.MustCompile(`[ \t]+`)
	newlineRunRE  = regexp.MustCompile(`\n{3,}`)
	spacedBreakRE = regexp.MustCompile(` *\n *`)
)

// Extractor walks one parsed HTML document.
type Extractor struct {
	root *html.Node

	buf          []string
	lastWasBlock bool
}

// New parses raw HTML. Malformed markup is recovered best-effort by the
// parser; only catastrophic reader failures return an error.
func New(rawHTML string) (*Extractor, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	return &Extractor{root: root}, nil
}

// Extract returns the normalized visual-text buffer.
func (e *Extractor) Extract() string {
	e.buf = e.buf[:0]
	e.lastWasBlock = false
	e.walk(e.root)
	return Normalize(strings.Join(e.buf, ""))
}

// Preamble returns the first maxChars characters of the buffer.
func (e *Extractor) Preamble(maxChars int) string {
	text := e.Extract()
	if maxChars > 0 && len(text) > maxChars {
		return text[:maxChars]
	}
	return text
}

func (e *Extractor) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) != "" {
			e.buf = append(e.buf, n.Data)
			e.lastWasBlock = false
		}
		return
	case html.ElementNode:
		// handled below
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			e.walk(c)
		}
		return
	default:
		return
	}

	tag := strings.ToLower(n.Data)
	if skipElements[tag] {
		return
	}

	isBlock := blockElements[tag]
	if isBlock && !e.lastWasBlock {
		e.buf = append(e.buf, "\n\n")
		e.lastWasBlock = true
	}

	switch tag {
	case "td", "th":
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			e.walk(c)
		}
		// Guard separator prevents regex-visible word fusion across cells,
		// unless the cell already ends in terminal punctuation or a break.
		if last := e.lastText(); last != "" && !strings.ContainsRune(".!?;:\n|", rune(last[len(last)-1])) {
			e.buf = append(e.buf, " | ")
		}
		return
	case "br":
		e.buf = append(e.buf, "\n")
		e.lastWasBlock = false
		return
	case "tr":
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			e.walk(c)
		}
		e.buf = append(e.buf, "\n")
		e.lastWasBlock = true
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c)
	}

	if isBlock && !e.lastWasBlock {
		e.buf = append(e.buf, "\n\n")
		e.lastWasBlock = true
	}
}

// lastText returns the trailing non-whitespace run of the buffer.
func (e *Extractor) lastText() string {
	for i := len(e.buf) - 1; i >= 0; i-- {
		if s := strings.TrimRight(e.buf[i], " \t"); s != "" {
			return s
		}
	}
	return ""
}

// Normalize applies the character-substitution table and whitespace rules
// to already-extracted text. It is idempotent.
func Normalize(text string) string {
	text = charReplacer.Replace(text)
	text = spaceRunRE.ReplaceAllString(text, " ")
	// Strip spaces hugging newlines before capping newline runs, so a
	// blank line that still carries spaces cannot survive the cap.
	text = spacedBreakRE.ReplaceAllString(text, "\n")
	text = newlineRunRE.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ExtractVisualText is the convenience one-shot form of Extract.
// On unparseable input it returns whatever text could be assembled.
func ExtractVisualText(rawHTML string) string {
	e, err := New(rawHTML)
	if err != nil {
		return Normalize(rawHTML)
	}
	return e.Extract()
}

// PreambleText extracts and truncates in one step.
func PreambleText(rawHTML string, maxChars int) string {
	text := ExtractVisualText(rawHTML)
	if maxChars > 0 && len(text) > maxChars {
		return text[:maxChars]
	}
	return text
}

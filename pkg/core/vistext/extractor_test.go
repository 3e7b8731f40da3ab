package vistext

import (
	"strings"
	"testing"
)

func TestExtractBlockBoundaries(t *testing.T) {
	html := `<html><body><div>First paragraph</div><div>Second paragraph</div></body></html>`
	text := ExtractVisualText(html)

	if !strings.Contains(text, "First paragraph\n\nSecond paragraph") {
		t.Errorf("expected paragraph break between divs, got: %q", text)
	}
}

func TestExtractTableCellGuard(t *testing.T) {
	html := `<table><tr><td>Alpha Holdings</td><td>Beta Corp</td></tr></table>`
	text := ExtractVisualText(html)

	if strings.Contains(text, "HoldingsBeta") {
		t.Fatalf("cells fused without guard: %q", text)
	}
	if !strings.Contains(text, "Alpha Holdings | Beta Corp") {
		t.Errorf("expected cell guard separator, got: %q", text)
	}
}

func TestExtractNoGuardAfterTerminalPunctuation(t *testing.T) {
	html := `<table><tr><td>Alpha Holdings, Inc.</td><td>Beta Corp</td></tr></table>`
	text := ExtractVisualText(html)

	if strings.Contains(text, ". |") {
		t.Errorf("guard added after terminal punctuation: %q", text)
	}
}

func TestExtractSkipsScriptAndStyle(t *testing.T) {
	html := `<html><head><style>.x{color:red}</style></head><body><script>var x=1;</script><div>Visible</div></body></html>`
	text := ExtractVisualText(html)

	if strings.Contains(text, "color:red") || strings.Contains(text, "var x") {
		t.Errorf("script/style content leaked: %q", text)
	}
	if !strings.Contains(text, "Visible") {
		t.Errorf("missing visible content: %q", text)
	}
}

func TestExtractStripsFormattingTags(t *testing.T) {
	html := `<div><b>AGREEMENT</b> <font color="red">AND</font> <span>PLAN OF MERGER</span></div>`
	text := ExtractVisualText(html)

	if !strings.Contains(text, "AGREEMENT AND PLAN OF MERGER") {
		t.Errorf("formatting tags should inline their children, got: %q", text)
	}
}

func TestNormalizeSmartCharacters(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"smart double quotes", "(the “Company”)", `(the "Company")`},
		{"smart single quotes", "the Company’s stock", "the Company's stock"},
		{"em dash", "2024—2025", "2024-2025"},
		{"en dash", "pages 4–6", "pages 4-6"},
		{"non-breaking space", "by and among", "by and among"},
		{"zero width space", "Tar​get", "Target"},
		{"byte order mark", "\uFEFFAGREEMENT", "AGREEMENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeWhitespaceCollapse(t *testing.T) {
	in := "a  \t b\n\n\n\n\nc  \n  d"
	got := Normalize(in)
	want := "a b\n\nc\nd"
	if got != want {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeCapsSpacedBlankLines(t *testing.T) {
	// Blank lines still carrying spaces must not escape the two-newline cap.
	in := "a \n \n \nb"
	got := Normalize(in)
	want := "a\n\nb"
	if got != want {
		t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"by and among Alpha Holdings, Inc. (“Parent”), and Target Co.",
		"plain ascii text stays untouched",
		"a  b\n\n\n\nc",
		"a \n \n \nb",
		"lines \n separated \n by \n spaced breaks",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestPreambleTruncation(t *testing.T) {
	html := "<div>" + strings.Repeat("x", 6000) + "</div>"
	got := PreambleText(html, DefaultPreambleChars)
	if len(got) != DefaultPreambleChars {
		t.Errorf("preamble length = %d, want %d", len(got), DefaultPreambleChars)
	}
}

func TestExtractMalformedHTMLRecovers(t *testing.T) {
	html := `<div>Unclosed <b>bold <table><tr><td>cell` // intentionally broken
	text := ExtractVisualText(html)
	if !strings.Contains(text, "Unclosed bold") || !strings.Contains(text, "cell") {
		t.Errorf("malformed HTML should recover best-effort, got: %q", text)
	}
}

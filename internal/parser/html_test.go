package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dgallion1/filingdrift/internal/doctree"
)

func TestHTMLSource_Headings(t *testing.T) {
	input := `<html><head><title>10-K</title><style>p{}</style></head><body>
<nav>Skip me</nav>
<h1>Annual Report</h1>
<p>Filed pursuant to Section 13.</p>
<p><b>PART I</b></p>
<p><b>Item&nbsp;1.   Business</b></p>
<p>We   explore
for oil.</p>
<table><tr><td>Revenue</td><td>100</td></tr></table>
<p>Item 1A. Risk Factors</p>
<p>Climate.</p>
<h2>Signatures</h2>
<script>var x = 1;</script>
</body></html>`

	src, err := NewHTMLSource(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := src.Outline()
	want := doctree.Outline{
		doctree.Leaf("Annual Report", 0),
		doctree.List(
			doctree.Leaf("PART I", 1),
			doctree.List(
				doctree.Leaf("Item 1. Business", 2),
				doctree.Leaf("Item 1A. Risk Factors", 3),
			),
			doctree.Leaf("Signatures", 4),
		),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outline mismatch (-want +got):\n%s", diff)
	}

	business, _ := src.PageText(2)
	wantPage := "Item 1. Business\n\nWe explore for oil.\n\nRevenue\n\n100"
	if business != wantPage {
		t.Errorf("page 2: expected %q, got %q", wantPage, business)
	}
	for i := 0; i < src.PageCount(); i++ {
		text, _ := src.PageText(i)
		if strings.Contains(text, "Skip me") || strings.Contains(text, "var x") {
			t.Errorf("page %d contains non-content text: %q", i, text)
		}
	}
}

func TestHTMLSource_NoHeadings(t *testing.T) {
	src, err := NewHTMLSource(strings.NewReader("<p>one</p><p>two</p>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outline, _ := src.Outline()
	if len(outline) != 0 {
		t.Errorf("expected empty outline, got %v", outline)
	}
	if src.PageCount() != 1 {
		t.Fatalf("expected 1 page, got %d", src.PageCount())
	}
	text, _ := src.PageText(0)
	if text != "one\n\ntwo" {
		t.Errorf("unexpected page %q", text)
	}
}

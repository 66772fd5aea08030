package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/webaudit/webaudit/internal/parser"
)

func init() {
	Register(&AccessibilityAnalyzer{})
}

// AccessibilityAnalyzer checks the structural accessibility signals visible
// in static markup: image alt text, heading structure, form labelling, and
// the document language declaration.
type AccessibilityAnalyzer struct{}

// Name implements Analyzer.
func (a *AccessibilityAnalyzer) Name() string { return "accessibility" }

// Analyze implements Analyzer.
func (a *AccessibilityAnalyzer) Analyze(_ context.Context, page *parser.ParsedPage) (*Report, error) {
	var c checklist

	c.check(page.Lang != "",
		"Missing lang attribute on <html>; screen readers cannot pick a voice",
		"Document language is declared")

	if len(page.Images) > 0 {
		missing := 0
		for _, img := range page.Images {
			if !img.AltSet {
				missing++
			}
		}
		c.check(missing == 0,
			fmt.Sprintf("%d of %d images missing alt attribute", missing, len(page.Images)),
			"All images carry an alt attribute")
	}

	c.check(len(page.Headings) > 0,
		"No headings found; content has no navigable structure",
		"Headings structure the content")

	h1s := 0
	skips := 0
	prev := 0
	for _, h := range page.Headings {
		if h.Level == 1 {
			h1s++
		}
		if prev > 0 && h.Level > prev+1 {
			skips++
		}
		prev = h.Level
	}
	if len(page.Headings) > 0 {
		c.check(h1s == 1,
			fmt.Sprintf("Expected exactly one H1, found %d", h1s),
			"Exactly one H1 heading")
		c.check(skips == 0,
			fmt.Sprintf("Heading hierarchy skips levels in %d places", skips),
			"Heading levels descend without gaps")
	}

	unlabelled := 0
	fields := 0
	for _, form := range page.Forms {
		for _, field := range form.Fields {
			if field.Type == "hidden" || field.Type == "submit" || field.Type == "button" {
				continue
			}
			fields++
			if field.ID == "" || !page.LabelForIDs[field.ID] {
				unlabelled++
			}
		}
	}
	if fields > 0 {
		c.check(unlabelled == 0,
			fmt.Sprintf("%d of %d form controls have no associated label", unlabelled, fields),
			"All form controls are labelled")
	}

	if page.Doc != nil {
		// Empty anchors are the most common screen-reader complaint after
		// missing alt text: nothing for the reader to announce.
		empty := 0
		total := 0
		page.Doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			total++
			if strings.TrimSpace(s.Text()) == "" && s.Find("img[alt]").Length() == 0 {
				if _, ok := s.Attr("aria-label"); !ok {
					empty++
				}
			}
		})
		if total > 0 {
			c.check(empty == 0,
				fmt.Sprintf("%d of %d links have no accessible text", empty, total),
				"All links have accessible text")
		}
	}

	return c.report(), nil
}

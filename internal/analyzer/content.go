package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/webaudit/webaudit/internal/parser"
)

func init() {
	Register(&ContentAnalyzer{})
}

// Thin-content thresholds.
const (
	contentMinWords        = 120
	contentGoodWords       = 300
	contentMaxLinkDensity  = 0.5
	contentTopKeywords     = 5
	contentMinKeywordRunes = 3
)

// stopwords is intentionally small: it only needs to keep function words
// out of the keyword ranking, not support real NLP.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "with": true,
	"this": true, "that": true, "from": true, "was": true, "were": true,
	"have": true, "has": true, "had": true, "not": true, "but": true,
	"you": true, "your": true, "our": true, "all": true, "can": true,
	"will": true, "more": true, "about": true, "into": true, "they": true,
	"their": true, "them": true, "its": true,
}

// ContentAnalyzer scores the page's textual substance: enough words to be
// worth indexing, a reasonable text-to-link ratio, paragraph structure, and
// a keyword ranking surfaced as a recommendation.
type ContentAnalyzer struct{}

// Name implements Analyzer.
func (a *ContentAnalyzer) Name() string { return "content" }

// Analyze implements Analyzer.
func (a *ContentAnalyzer) Analyze(_ context.Context, page *parser.ParsedPage) (*Report, error) {
	var c checklist

	words := strings.Fields(page.Text)
	switch {
	case len(words) < contentMinWords:
		c.issue(fmt.Sprintf("Content is thin: %d words (want at least %d)", len(words), contentGoodWords))
	case len(words) < contentGoodWords:
		c.issue(fmt.Sprintf("Content is short: %d words (want at least %d)", len(words), contentGoodWords))
	default:
		c.check(true, "", fmt.Sprintf("Content length is healthy: %d words", len(words)))
	}

	if len(words) > 0 && len(page.Links) > 0 {
		density := float64(len(page.Links)) / float64(len(words))
		c.check(density <= contentMaxLinkDensity,
			fmt.Sprintf("Link density %.2f links per word suggests a link farm or navigation-only page", density),
			"Text-to-link ratio is healthy")
	}

	if page.Doc != nil {
		paragraphs := page.Doc.Find("p").Length()
		c.check(paragraphs > 0,
			"No paragraph elements; text is unstructured",
			fmt.Sprintf("Content is structured into %d paragraphs", paragraphs))
	}

	c.check(len(page.Headings) > 0,
		"Content has no headings to break it up",
		"Content is broken up by headings")

	if top := topKeywords(words, contentTopKeywords); len(top) > 0 {
		c.recommend("Top keywords: " + strings.Join(top, ", "))
	}

	return c.report(), nil
}

// topKeywords ranks non-stopword tokens by frequency.
func topKeywords(words []string, n int) []string {
	freq := make(map[string]int)
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,;:!?\"'()[]{}"))
		if len([]rune(w)) < contentMinKeywordRunes || stopwords[w] {
			continue
		}
		freq[w]++
	}

	type kw struct {
		word  string
		count int
	}
	ranked := make([]kw, 0, len(freq))
	for w, count := range freq {
		if count > 1 {
			ranked = append(ranked, kw{w, count})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, k := range ranked {
		out[i] = fmt.Sprintf("%s (%d)", k.word, k.count)
	}
	return out
}

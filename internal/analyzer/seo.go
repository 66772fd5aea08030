package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/webaudit/webaudit/internal/parser"
)

func init() {
	Register(&SEOAnalyzer{})
}

// SEOAnalyzer checks the on-page signals search engines score: title and
// description lengths, heading structure, social-sharing tags, canonical
// and robots directives, and structured data.
type SEOAnalyzer struct{}

// Name implements Analyzer.
func (a *SEOAnalyzer) Name() string { return "seo" }

// Analyze implements Analyzer.
func (a *SEOAnalyzer) Analyze(_ context.Context, page *parser.ParsedPage) (*Report, error) {
	var c checklist

	switch title := page.Title; {
	case title == "":
		c.issue("Missing title tag")
	case len(title) < 30:
		c.issue(fmt.Sprintf("Title tag is too short (%d characters, want 30-60)", len(title)))
	case len(title) > 60:
		c.issue(fmt.Sprintf("Title tag is too long (%d characters, want 30-60)", len(title)))
	default:
		c.check(true, "", fmt.Sprintf("Title tag length is optimal: %d characters", len(title)))
	}

	switch desc := page.MetaTags["description"]; {
	case desc == "":
		c.issue("Missing meta description")
	case len(desc) < 50:
		c.issue(fmt.Sprintf("Meta description is too short (%d characters, want 50-160)", len(desc)))
	case len(desc) > 160:
		c.issue(fmt.Sprintf("Meta description is too long (%d characters, want 50-160)", len(desc)))
	default:
		c.check(true, "", fmt.Sprintf("Meta description length is optimal: %d characters", len(desc)))
	}

	hasH1 := false
	for _, h := range page.Headings {
		if h.Level == 1 {
			hasH1 = true
			break
		}
	}
	c.check(hasH1, "Missing H1 heading", "H1 heading is present")

	c.check(page.Canonical != "", "Missing canonical URL tag", "Canonical URL tag is present")

	if robots, ok := page.MetaTags["robots"]; ok {
		content := strings.ToLower(robots)
		c.check(!strings.Contains(content, "noindex") && !strings.Contains(content, "nofollow"),
			"Page is not indexable or followable",
			"Robots meta tag is properly configured")
	} else {
		c.issue("Missing robots meta tag")
	}

	var missingOG []string
	for _, tag := range []string{"og:title", "og:description", "og:image", "og:url"} {
		if page.MetaTags[tag] == "" {
			missingOG = append(missingOG, tag)
		}
	}
	c.check(len(missingOG) == 0,
		fmt.Sprintf("Missing required Open Graph tags: %s", strings.Join(missingOG, ", ")),
		"All required Open Graph tags are present")

	viewport := page.MetaTags["viewport"]
	c.check(strings.Contains(viewport, "width=device-width"),
		"Missing or incomplete viewport meta tag",
		"Viewport meta tag is mobile-friendly")

	if page.Doc != nil {
		hasLD := page.Doc.Find(`script[type="application/ld+json"]`).Length() > 0
		c.check(hasLD, "Missing structured data (JSON-LD)", "Structured data is present")
	}

	if len(page.Images) > 0 {
		missingAlt := 0
		for _, img := range page.Images {
			if !img.AltSet || len(strings.TrimSpace(img.Alt)) < 3 {
				missingAlt++
			}
		}
		c.check(missingAlt == 0,
			fmt.Sprintf("%d of %d images lack descriptive alt text", missingAlt, len(page.Images)),
			"All images have descriptive alt text")
	}

	if len(page.Text) < 300 {
		c.recommend("Content is thin; pages under 300 characters rarely rank")
	}

	return c.report(), nil
}

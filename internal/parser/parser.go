package parser

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/webaudit/webaudit/internal/model"
)

// Heading is one h1..h6 element in document order.
type Heading struct {
	// Level is 1 through 6.
	Level int

	// Text is the trimmed heading text.
	Text string
}

// Image is one img element.
type Image struct {
	// Src is the resolved image URL.
	Src string

	// Alt is the alt attribute value.
	Alt string

	// AltSet distinguishes a present-but-empty alt (valid for decorative
	// images) from a missing one.
	AltSet bool
}

// Script is one script element.
type Script struct {
	// Src is the resolved source URL; empty for inline scripts.
	Src string

	// Async and Defer mirror the loading attributes.
	Async bool
	Defer bool
}

// FormField is one input, select, or textarea inside a form.
type FormField struct {
	// Name is the field name attribute.
	Name string

	// Type is the input type (text, password, hidden, ...).
	Type string

	// ID is the element id, used to pair fields with labels.
	ID string
}

// Form describes an HTML form.
type Form struct {
	// Action is the resolved form action URL.
	Action string

	// Method is the HTTP method, uppercased, defaulting to GET.
	Method string

	// Fields are the form's named inputs.
	Fields []FormField
}

// ParsedPage is the structured representation of one fetched page.
type ParsedPage struct {
	// URL is the page's own URL.
	URL string

	// Fetch is the response the page was parsed from. Analyzers read
	// headers and timing from it; they must not mutate it.
	Fetch *model.FetchResult

	// Title is the text of the first <title> element.
	Title string

	// Lang is the lang attribute of the <html> element.
	Lang string

	// MetaTags maps meta name (or OpenGraph property) to content.
	MetaTags map[string]string

	// Canonical is the resolved href of <link rel="canonical">, if any.
	Canonical string

	// Headings are all h1..h6 elements in document order.
	Headings []Heading

	// Links are all resolved anchor targets.
	Links []string

	// InternalLinks are links sharing the page's host.
	InternalLinks []string

	// ExternalLinks point at other hosts.
	ExternalLinks []string

	// Images, Scripts, Stylesheets are the page's referenced resources.
	Images      []Image
	Scripts     []Script
	Stylesheets []string

	// Forms are the page's HTML forms.
	Forms []Form

	// LabelForIDs are the for attributes of <label> elements, used to
	// check that form fields are labelled.
	LabelForIDs map[string]bool

	// Text is the page's visible text content (script and style excluded).
	Text string

	// Doc is a goquery document over the same parsed tree for ad hoc
	// CSS-selector queries.
	Doc *goquery.Document
}

// Parser extracts a ParsedPage from raw HTML.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. It correctly handles malformed HTML common on the web
//  2. Provides a proper DOM-like structure
//  3. More maintainable than complex regex patterns
//  4. Standard library extension, well-maintained
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving
	// relative URLs.
	baseURL *url.URL
}

// New creates a parser that resolves relative links against baseURL.
func New(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses the fetched page body and extracts all fields in one pass.
func (p *Parser) Parse(fetch *model.FetchResult) (*ParsedPage, error) {
	root, err := html.Parse(bytes.NewReader(fetch.Body))
	if err != nil {
		return nil, err
	}

	doc := goquery.NewDocumentFromNode(root)

	page := &ParsedPage{
		URL:         p.baseURL.String(),
		Fetch:       fetch,
		MetaTags:    make(map[string]string),
		LabelForIDs: make(map[string]bool),
		Doc:         doc,
	}

	var text strings.Builder

	var walk func(n *html.Node, inSilent bool)
	walk = func(n *html.Node, inSilent bool) {
		switch n.Type {
		case html.ElementNode:
			p.processElement(n, page)
			if n.Data == "script" || n.Data == "style" {
				inSilent = true
			}
		case html.TextNode:
			if !inSilent {
				text.WriteString(n.Data)
				text.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inSilent)
		}
	}
	walk(root, false)

	page.Text = strings.Join(strings.Fields(text.String()), " ")
	return page, nil
}

// processElement dispatches on element name and records what the page
// representation needs.
func (p *Parser) processElement(n *html.Node, page *ParsedPage) {
	switch n.Data {
	case "html":
		if lang := getAttr(n, "lang"); lang != "" {
			page.Lang = lang
		}

	case "title":
		if page.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			page.Title = strings.TrimSpace(n.FirstChild.Data)
		}

	case "h1", "h2", "h3", "h4", "h5", "h6":
		page.Headings = append(page.Headings, Heading{
			Level: int(n.Data[1] - '0'),
			Text:  strings.TrimSpace(nodeText(n)),
		})

	case "a":
		if href := getAttr(n, "href"); href != "" {
			resolved := p.resolveURL(href)
			if resolved != "" {
				page.Links = append(page.Links, resolved)
				p.classifyLink(resolved, page)
			}
		}

	case "img":
		img := Image{Src: p.resolveURL(getAttr(n, "src"))}
		img.Alt, img.AltSet = lookupAttr(n, "alt")
		page.Images = append(page.Images, img)

	case "script":
		page.Scripts = append(page.Scripts, Script{
			Src:   p.resolveURL(getAttr(n, "src")),
			Async: hasAttr(n, "async"),
			Defer: hasAttr(n, "defer"),
		})

	case "link":
		href := getAttr(n, "href")
		if href == "" {
			return
		}
		switch strings.ToLower(getAttr(n, "rel")) {
		case "stylesheet":
			page.Stylesheets = append(page.Stylesheets, p.resolveURL(href))
		case "canonical":
			page.Canonical = p.resolveURL(href)
		}

	case "meta":
		name := getAttr(n, "name")
		if name == "" {
			name = getAttr(n, "property") // OpenGraph uses property
		}
		if content := getAttr(n, "content"); name != "" && content != "" {
			page.MetaTags[strings.ToLower(name)] = content
		}

	case "label":
		if forID := getAttr(n, "for"); forID != "" {
			page.LabelForIDs[forID] = true
		}

	case "form":
		form := Form{
			Action: p.resolveURL(getAttr(n, "action")),
			Method: strings.ToUpper(getAttr(n, "method")),
		}
		if form.Method == "" {
			form.Method = "GET"
		}
		extractFormFields(n, &form)
		page.Forms = append(page.Forms, form)
	}
}

// extractFormFields recursively collects named inputs under a form element.
func extractFormFields(n *html.Node, form *Form) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "input", "select", "textarea":
			field := FormField{
				Name: getAttr(n, "name"),
				Type: getAttr(n, "type"),
				ID:   getAttr(n, "id"),
			}
			if field.Type == "" {
				switch n.Data {
				case "textarea", "select":
					field.Type = n.Data
				default:
					field.Type = "text"
				}
			}
			if field.Name != "" {
				form.Fields = append(form.Fields, field)
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractFormFields(c, form)
	}
}

// resolveURL resolves a relative URL against the base URL, dropping
// non-navigable schemes.
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") ||
		href == "#" {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return p.baseURL.ResolveReference(u).String()
}

// classifyLink buckets a resolved link as internal or external by host.
func (p *Parser) classifyLink(link string, page *ParsedPage) {
	u, err := url.Parse(link)
	if err != nil {
		return
	}

	if strings.EqualFold(u.Host, p.baseURL.Host) ||
		strings.EqualFold(u.Hostname(), p.baseURL.Hostname()) {
		page.InternalLinks = append(page.InternalLinks, link)
		return
	}
	if u.Host != "" {
		page.ExternalLinks = append(page.ExternalLinks, link)
		return
	}
	page.InternalLinks = append(page.InternalLinks, link)
}

// nodeText returns the concatenated text of a node's subtree.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// lookupAttr retrieves an attribute and whether it was present at all.
func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// hasAttr reports attribute presence, value ignored.
func hasAttr(n *html.Node, key string) bool {
	_, ok := lookupAttr(n, key)
	return ok
}

package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/webaudit/webaudit/internal/parser"
)

func init() {
	Register(&SecurityAnalyzer{})
}

// SecurityAnalyzer checks response headers and markup for the defenses a
// hardened site carries: transport security, framing and XSS protections,
// cookie flags, and credential forms submitted over plaintext.
type SecurityAnalyzer struct{}

// Name implements Analyzer.
func (a *SecurityAnalyzer) Name() string { return "security" }

// Analyze implements Analyzer.
func (a *SecurityAnalyzer) Analyze(_ context.Context, page *parser.ParsedPage) (*Report, error) {
	var c checklist

	isHTTPS := strings.HasPrefix(page.URL, "https://")
	c.check(isHTTPS, "Page is served over plain HTTP", "Page is served over HTTPS")

	headers := page.Fetch.Headers

	if isHTTPS {
		c.check(headers.Get("Strict-Transport-Security") != "",
			"Missing Strict-Transport-Security header",
			"HSTS is enabled")
	}

	csp := headers.Get("Content-Security-Policy")
	c.check(csp != "",
		"Missing Content-Security-Policy header",
		"Content-Security-Policy is set")
	if csp != "" && strings.Contains(csp, "unsafe-inline") {
		c.recommend("CSP allows unsafe-inline; consider nonces or hashes")
	}

	xfo := strings.ToLower(headers.Get("X-Frame-Options"))
	framingOK := xfo == "deny" || xfo == "sameorigin" ||
		strings.Contains(strings.ToLower(csp), "frame-ancestors")
	c.check(framingOK,
		"Missing X-Frame-Options and CSP frame-ancestors; page can be framed (clickjacking)",
		"Clickjacking protection is in place")

	c.check(strings.EqualFold(headers.Get("X-Content-Type-Options"), "nosniff"),
		"Missing X-Content-Type-Options: nosniff header",
		"MIME sniffing is disabled")

	c.check(headers.Get("Referrer-Policy") != "",
		"Missing Referrer-Policy header",
		"Referrer-Policy is set")

	for _, cookie := range headers.Values("Set-Cookie") {
		lower := strings.ToLower(cookie)
		var missing []string
		if !strings.Contains(lower, "secure") {
			missing = append(missing, "Secure")
		}
		if !strings.Contains(lower, "httponly") {
			missing = append(missing, "HttpOnly")
		}
		if !strings.Contains(lower, "samesite") {
			missing = append(missing, "SameSite")
		}
		name, _, _ := strings.Cut(cookie, "=")
		c.check(len(missing) == 0,
			fmt.Sprintf("Cookie %q missing flags: %s", name, strings.Join(missing, ", ")),
			"")
	}

	for _, form := range page.Forms {
		hasPassword := false
		for _, field := range form.Fields {
			if field.Type == "password" {
				hasPassword = true
				break
			}
		}
		if !hasPassword {
			continue
		}
		c.check(form.Method == "POST",
			"Credential form submits via GET; credentials would appear in URLs and logs",
			"Credential form uses POST")
		c.check(!strings.HasPrefix(form.Action, "http://"),
			fmt.Sprintf("Credential form posts to insecure endpoint %s", form.Action),
			"Credential form posts to a secure endpoint")
	}

	if isHTTPS {
		mixed := 0
		for _, src := range collectResourceURLs(page) {
			if strings.HasPrefix(src, "http://") {
				mixed++
			}
		}
		c.check(mixed == 0,
			fmt.Sprintf("%d resources loaded over plain HTTP on an HTTPS page (mixed content)", mixed),
			"No mixed content")
	}

	return c.report(), nil
}

// collectResourceURLs gathers every subresource URL the page references.
func collectResourceURLs(page *parser.ParsedPage) []string {
	urls := make([]string, 0, len(page.Images)+len(page.Scripts)+len(page.Stylesheets))
	for _, img := range page.Images {
		if img.Src != "" {
			urls = append(urls, img.Src)
		}
	}
	for _, script := range page.Scripts {
		if script.Src != "" {
			urls = append(urls, script.Src)
		}
	}
	urls = append(urls, page.Stylesheets...)
	return urls
}

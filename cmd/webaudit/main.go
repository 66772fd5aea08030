// Package main provides the entry point for the webaudit CLI.
//
// webaudit crawls a website and evaluates each page with a configurable
// set of analyzers (SEO, accessibility, security, performance, content),
// producing scored reports.
//
// Usage:
//
//	webaudit audit <url>
//	webaudit history <url>
//
// See --help for all available options.
package main

// main is the entry point for webaudit.
func main() {
	Execute()
}

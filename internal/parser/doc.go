// Package parser converts raw fetched HTML into the structured page
// representation consumed by analyzers and the crawler's link extraction.
//
// One parsing pass walks the DOM and collects everything downstream
// consumers need (title, headings, links, images, forms, metadata, visible
// text). A goquery document over the same tree is attached for analyzers
// that want CSS-selector queries beyond the pre-extracted fields.
package parser

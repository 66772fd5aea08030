// Package report renders a completed site audit in different output
// formats:
//   - SimpleWriter: human-readable text for terminal display
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: GitHub-flavored Markdown for documentation
//
// Design decision: We separate report writing from report data structures
// (which are in the model package) so new output formats can be added
// without touching the core types. Writers implement the Writer interface
// and compose through MultiWriter for multi-format output.
package report

package analyzer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/webaudit/webaudit/internal/parser"
)

// Report is the raw output of one analyzer run. The pipeline wraps it into
// the per-analyzer outcome record with timing and failure state.
type Report struct {
	// Score is 0-100.
	Score float64

	// Issues are problems found on the page.
	Issues []string

	// Recommendations are positive findings or suggested improvements.
	Recommendations []string
}

// Analyzer inspects one parsed page.
type Analyzer interface {
	// Name identifies the analyzer in results and configuration.
	Name() string

	// Analyze scores the page. It must be a pure function of the page
	// content and return promptly when ctx is done.
	Analyze(ctx context.Context, page *parser.ParsedPage) (*Report, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Analyzer)
)

// Register adds an analyzer to the registry. Registering the same name
// twice panics; it indicates a programming error, not a runtime condition.
func Register(a Analyzer) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[a.Name()]; dup {
		panic("analyzer: duplicate registration of " + a.Name())
	}
	registry[a.Name()] = a
}

// Get resolves a list of analyzer names. An empty list selects every
// registered analyzer. Unknown names are an error.
func Get(names ...string) ([]Analyzer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if len(names) == 0 {
		return allLocked(), nil
	}

	analyzers := make([]Analyzer, 0, len(names))
	for _, name := range names {
		a, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown analyzer %q (available: %v)", name, namesLocked())
		}
		analyzers = append(analyzers, a)
	}
	return analyzers, nil
}

// Names returns the sorted names of all registered analyzers.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func allLocked() []Analyzer {
	analyzers := make([]Analyzer, 0, len(registry))
	for _, name := range namesLocked() {
		analyzers = append(analyzers, registry[name])
	}
	return analyzers
}

// checklist accumulates pass/fail findings and derives a score from the
// pass ratio. Most built-in analyzers score this way.
type checklist struct {
	issues          []string
	recommendations []string
	passes          int
	total           int
}

// check records one finding: ok adds a pass (with an optional positive
// note), not-ok records the issue.
func (c *checklist) check(ok bool, issue, pass string) {
	c.total++
	if ok {
		c.passes++
		if pass != "" {
			c.recommendations = append(c.recommendations, pass)
		}
		return
	}
	c.issues = append(c.issues, issue)
}

// issue records a failed finding without a paired pass message.
func (c *checklist) issue(msg string) {
	c.total++
	c.issues = append(c.issues, msg)
}

// recommend adds advice without affecting the score.
func (c *checklist) recommend(msg string) {
	c.recommendations = append(c.recommendations, msg)
}

// report converts the checklist into a Report. An empty checklist scores 0.
func (c *checklist) report() *Report {
	score := 0.0
	if c.total > 0 {
		score = float64(c.passes) / float64(c.total) * 100
	}
	return &Report{
		Score:           score,
		Issues:          c.issues,
		Recommendations: c.recommendations,
	}
}

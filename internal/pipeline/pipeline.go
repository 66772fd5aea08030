package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/webaudit/webaudit/internal/analyzer"
	"github.com/webaudit/webaudit/internal/cache"
	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/model"
	"github.com/webaudit/webaudit/internal/parser"
)

// Pipeline evaluates parsed pages with a fixed analyzer set.
type Pipeline struct {
	analyzers       []analyzer.Analyzer
	signature       string
	analyzerTimeout time.Duration
	cache           *cache.Cache[*model.PageEvaluationResult]
	cacheTTL        time.Duration
	group           singleflight.Group
	logger          *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache attaches the result cache used to memoize finished evaluations
// for the given TTL.
func WithCache(c *cache.Cache[*model.PageEvaluationResult], ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.cache = c
		p.cacheTTL = ttl
	}
}

// WithAnalyzerTimeout bounds each individual analyzer invocation.
func WithAnalyzerTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.analyzerTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline over the given analyzers. The analyzer set is
// fixed for the pipeline's lifetime; its sorted names form the cache-key
// signature so the same URL evaluated with a different set misses.
func New(analyzers []analyzer.Analyzer, opts ...Option) *Pipeline {
	names := make([]string, len(analyzers))
	for i, a := range analyzers {
		names[i] = a.Name()
	}
	sort.Strings(names)

	p := &Pipeline{
		analyzers:       analyzers,
		signature:       strings.Join(names, ","),
		analyzerTimeout: config.DefaultAnalyzerTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Signature identifies the analyzer set for cache keying.
func (p *Pipeline) Signature() string { return p.signature }

// cacheKey builds the memoization key for one page.
func (p *Pipeline) cacheKey(pageURL string) string {
	return pageURL + "|eval|" + p.signature
}

// Evaluate runs every analyzer against the page and aggregates the
// outcomes. Results are memoized; concurrent calls for the same URL join a
// single in-flight evaluation and share the returned result, which must be
// treated as read-only.
func (p *Pipeline) Evaluate(ctx context.Context, page *parser.ParsedPage) (*model.PageEvaluationResult, error) {
	key := p.cacheKey(page.URL)
	if p.cache != nil {
		if res, ok := p.cache.Get(key); ok {
			p.logger.Debug("evaluation cache hit", "url", page.URL)
			return res, nil
		}
	}

	res, err, _ := p.group.Do(key, func() (any, error) {
		if p.cache != nil {
			if cached, ok := p.cache.Get(key); ok {
				return cached, nil
			}
		}

		result, err := p.evaluate(ctx, page)
		if err != nil {
			return nil, err
		}
		// Cache only fully-aggregated results; a cancelled run must leave
		// no partial entry behind.
		if p.cache != nil {
			p.cache.Put(key, result, p.cacheTTL)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*model.PageEvaluationResult), nil
}

// evaluate fans the analyzers out, waits for all outcomes, and aggregates.
func (p *Pipeline) evaluate(ctx context.Context, page *parser.ParsedPage) (*model.PageEvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes := make([]model.AnalyzerOutcome, len(p.analyzers))
	done := make(chan int, len(p.analyzers))
	for i, a := range p.analyzers {
		go func(i int, a analyzer.Analyzer) {
			outcomes[i] = p.runOne(ctx, a, page)
			done <- i
		}(i, a)
	}
	for range p.analyzers {
		<-done
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &model.PageEvaluationResult{
		URL:         page.URL,
		Analyzers:   make(map[string]model.AnalyzerOutcome, len(outcomes)),
		EvaluatedAt: time.Now(),
	}

	var sum float64
	succeeded := 0
	for _, outcome := range outcomes {
		result.Analyzers[outcome.Analyzer] = outcome
		if outcome.Failed {
			p.logger.Warn("analyzer failed",
				"url", page.URL, "analyzer", outcome.Analyzer, "error", outcome.Error)
			continue
		}
		sum += outcome.Score
		succeeded++
		result.Issues = append(result.Issues, outcome.Issues...)
		result.Recommendations = append(result.Recommendations, outcome.Recommendations...)
	}

	if succeeded == 0 {
		result.OverallScore = 0
		result.AllFailed = true
		return result, nil
	}
	result.OverallScore = sum / float64(succeeded)
	return result, nil
}

// runOne executes a single analyzer under its timeout with panic isolation.
// It always returns an outcome; failure is data, not an error. The return
// value is named so the deferred elapsed-time stamp lands on the outcome the
// caller actually receives.
func (p *Pipeline) runOne(ctx context.Context, a analyzer.Analyzer, page *parser.ParsedPage) (outcome model.AnalyzerOutcome) {
	outcome.Analyzer = a.Name()
	start := time.Now()
	defer func() {
		outcome.Elapsed = time.Since(start)
	}()

	actx, cancel := context.WithTimeout(ctx, p.analyzerTimeout)
	defer cancel()

	type analyzed struct {
		report *analyzer.Report
		err    error
	}
	ch := make(chan analyzed, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- analyzed{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		report, err := a.Analyze(actx, page)
		ch <- analyzed{report: report, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			outcome.Failed = true
			outcome.Error = res.err.Error()
			return outcome
		}
		outcome.Score = res.report.Score
		outcome.Issues = res.report.Issues
		outcome.Recommendations = res.report.Recommendations
		return outcome

	case <-actx.Done():
		// The analyzer goroutine may still be running; it is abandoned and
		// its late result discarded via the buffered channel.
		outcome.Failed = true
		outcome.Error = fmt.Sprintf("analyzer timed out after %v", p.analyzerTimeout)
		return outcome
	}
}

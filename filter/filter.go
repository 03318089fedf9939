package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var ErrModeConflict = errors.New("include and exclude filters are mutually exclusive")

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Active reports whether any pattern is configured.
func (o Options) Active() bool {
	return len(o.IncludeHeader)+len(o.IncludeBody)+len(o.ExcludeHeader)+len(o.ExcludeBody) > 0
}

// Stats reports how often each pattern matched.
type Stats struct {
	IncludeHeaderPatterns []string
	IncludeBodyPatterns   []string
	ExcludeHeaderPatterns []string
	ExcludeBodyPatterns   []string
	IncludeHeaderHits     map[string]int
	IncludeBodyHits       map[string]int
	ExcludeHeaderHits     map[string]int
	ExcludeBodyHits       map[string]int
}

type patternSet struct {
	patterns []*regexp.Regexp
	hits     map[string]int
}

func (p *patternSet) sources() []string {
	out := make([]string, 0, len(p.patterns))
	for _, re := range p.patterns {
		out = append(out, re.String())
	}
	return out
}

// Filter holds compiled regex patterns for selecting messages.
type Filter struct {
	includeMode    bool
	excludeMode    bool
	includeHeader  patternSet
	includeBody    patternSet
	excludeHeader  patternSet
	excludeBody    patternSet
	needHeaderText bool
	needBodyText   bool

	mu sync.Mutex
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeHeader.patterns) > 0 || len(includeBody.patterns) > 0
	excludeActive := len(excludeHeader.patterns) > 0 || len(excludeBody.patterns) > 0
	if includeActive && excludeActive {
		return nil, ErrModeConflict
	}

	return &Filter{
		includeMode:    includeActive,
		excludeMode:    excludeActive,
		includeHeader:  includeHeader,
		includeBody:    includeBody,
		excludeHeader:  excludeHeader,
		excludeBody:    excludeBody,
		needHeaderText: len(includeHeader.patterns) > 0 || len(excludeHeader.patterns) > 0,
		needBodyText:   len(includeBody.patterns) > 0 || len(excludeBody.patterns) > 0,
	}, nil
}

// Allows returns true if the message passes the filter criteria. A nil
// Filter allows everything. Header and body are only matched as text, they
// are never altered.
func (f *Filter) Allows(header, body []byte) bool {
	if f == nil || (!f.includeMode && !f.excludeMode) {
		return true
	}

	var headerText, bodyText string
	if f.needHeaderText {
		headerText = string(header)
	}
	if f.needBodyText {
		bodyText = string(body)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.includeMode {
		headerHit := matchAny(&f.includeHeader, headerText)
		bodyHit := matchAny(&f.includeBody, bodyText)
		return headerHit || bodyHit
	}

	headerHit := matchAny(&f.excludeHeader, headerText)
	bodyHit := matchAny(&f.excludeBody, bodyText)
	return !headerHit && !bodyHit
}

// GetStats returns a copy of the per-pattern hit counters.
func (f *Filter) GetStats() Stats {
	if f == nil {
		return Stats{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	return Stats{
		IncludeHeaderPatterns: f.includeHeader.sources(),
		IncludeBodyPatterns:   f.includeBody.sources(),
		ExcludeHeaderPatterns: f.excludeHeader.sources(),
		ExcludeBodyPatterns:   f.excludeBody.sources(),
		IncludeHeaderHits:     copyHits(f.includeHeader.hits),
		IncludeBodyHits:       copyHits(f.includeBody.hits),
		ExcludeHeaderHits:     copyHits(f.excludeHeader.hits),
		ExcludeBodyHits:       copyHits(f.excludeBody.hits),
	}
}

func compilePatterns(patterns []string) (patternSet, error) {
	set := patternSet{hits: make(map[string]int)}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return patternSet{}, fmt.Errorf("compile %q: %w", pattern, err)
		}
		set.patterns = append(set.patterns, re)
	}
	return set, nil
}

// matchAny counts every matching pattern, not only the first, so the stats
// show which patterns are actually doing the work.
func matchAny(set *patternSet, text string) bool {
	matched := false
	for _, re := range set.patterns {
		if re.MatchString(text) {
			set.hits[re.String()]++
			matched = true
		}
	}
	return matched
}

func copyHits(hits map[string]int) map[string]int {
	out := make(map[string]int, len(hits))
	for k, v := range hits {
		out[k] = v
	}
	return out
}
